package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("not found")

	// Chart answer pipeline failures. Everything except ErrInvocationAbandoned is
	// turned into a diagnostic string at the tool boundary.
	ErrInvalidAnswer         = errors.New("invalid answer")
	ErrMetadataUnavailable   = errors.New("metadata unavailable")
	ErrUnresolvableDimension = errors.New("unresolvable dimension")
	ErrUnresolvableMeasure   = errors.New("unresolvable measure")
	ErrUnresolvableSlicer    = errors.New("unresolvable slicer")
	ErrQueryExecution        = errors.New("query execution failed")
	ErrRender                = errors.New("render failed")
	ErrInvocationAbandoned   = errors.New("invocation abandoned")
)

// ResolutionError reports a model-emitted name that could not be mapped onto
// the entity type. It unwraps to one of the Unresolvable* sentinels.
type ResolutionError struct {
	Kind       error
	Name       string
	Candidates []string
}

// NewResolutionError builds a ResolutionError for the given sentinel kind.
func NewResolutionError(kind error, name string, candidates []string) *ResolutionError {
	return &ResolutionError{Kind: kind, Name: name, Candidates: candidates}
}

func (e *ResolutionError) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("%v: %q", e.Kind, e.Name)
	}
	return fmt.Sprintf("%v: %q (available: %s)", e.Kind, e.Name, strings.Join(e.Candidates, ", "))
}

func (e *ResolutionError) Unwrap() error {
	return e.Kind
}
