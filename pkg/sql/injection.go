// Package sql screens model-emitted filter values before they are bound into
// chart queries.
package sql

import (
	"fmt"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a value libinjection flagged.
type InjectionCheckResult struct {
	Field       string // dimension or variable the value targets
	Value       string
	Fingerprint string // libinjection token fingerprint, e.g. "s&1c"
}

func (r *InjectionCheckResult) Error() string {
	return fmt.Sprintf("suspicious value %q for %q (fingerprint %s)", r.Value, r.Field, r.Fingerprint)
}

// CheckValue runs libinjection over one value. Returns nil when clean.
func CheckValue(field, value string) *InjectionCheckResult {
	if value == "" {
		return nil
	}
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		Field:       field,
		Value:       value,
		Fingerprint: string(fingerprint),
	}
}

// CheckMembers screens slicer member keys and captions and returns the first
// suspicious value, or nil. Values are bound as parameters regardless; this
// rejects filters that are clearly not dimension members.
func CheckMembers(field string, values ...string) *InjectionCheckResult {
	for _, v := range values {
		if r := CheckValue(field, v); r != nil {
			return r
		}
	}
	return nil
}
