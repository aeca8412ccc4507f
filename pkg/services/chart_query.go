package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
)

// DefaultQueryTimeout bounds one chart query when no timeout is configured.
const DefaultQueryTimeout = 60 * time.Second

// QuerySession runs the chart query of one invocation. At most one query is
// outstanding: starting a new run dismantles the previous one, whose caller
// then gets ErrInvocationAbandoned. Close is the teardown signal; results
// that arrive after it are discarded.
type QuerySession struct {
	core    DSCoreService
	timeout time.Duration
	logger  *zap.Logger

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	closed     bool
	done       chan struct{}
}

type queryOutcome struct {
	result *datasource.QueryExecutionResult
	err    error
}

// NewQuerySession creates a session over the data-access core.
func NewQuerySession(core DSCoreService, timeout time.Duration, logger *zap.Logger) *QuerySession {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &QuerySession{
		core:    core,
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Execute issues exactly one query for q and waits for its single terminal
// result. Engine failures come back as a failed QueryResult, not an error.
// The error is ErrInvocationAbandoned when ctx is cancelled, the session is
// closed or a newer run superseded this one.
func (s *QuerySession) Execute(ctx context.Context, q *models.ChartQuery) (*models.QueryResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, apperrors.ErrInvocationAbandoned
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	gen := s.generation
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	outcome := make(chan queryOutcome, 1)
	go func() {
		res, err := s.core.QueryChart(runCtx, q)
		outcome <- queryOutcome{result: res, err: err}
	}()

	var out queryOutcome
	select {
	case out = <-outcome:
	case <-runCtx.Done():
	case <-s.done:
	}

	if !s.current(gen) || ctx.Err() != nil {
		s.logger.Debug("Discarding chart query result",
			zap.String("data_source", q.DataSource),
			zap.String("entity_set", q.EntitySet),
		)
		return nil, apperrors.ErrInvocationAbandoned
	}

	if out.result == nil && out.err == nil {
		// Only the run deadline can leave the select without an outcome here.
		return &models.QueryResult{Error: fmt.Sprintf("query timed out after %s", s.timeout)}, nil
	}
	if out.err != nil {
		if errors.Is(out.err, context.DeadlineExceeded) {
			return &models.QueryResult{Error: fmt.Sprintf("query timed out after %s", s.timeout)}, nil
		}
		return &models.QueryResult{Error: datasource.ErrorMessage(out.err)}, nil
	}

	data := out.result.Rows
	if data == nil {
		data = []map[string]any{}
	}
	return &models.QueryResult{Data: data}, nil
}

// current reports whether gen is still the live run of an open session.
func (s *QuerySession) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.generation == gen
}

// Close tears the session down and cancels any outstanding query. Idempotent.
func (s *QuerySession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	if s.cancel != nil {
		s.cancel()
	}
}
