package services

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/apperrors"
)

var tracer = otel.Tracer("github.com/ekaya-inc/ekaya-chatbi/pkg/services")

// Invocation outcomes.
const (
	outcomeRendered  = "rendered"
	outcomeAnswered  = "answered"
	outcomeFailed    = "failed"
	outcomeAbandoned = "abandoned"
)

var (
	// answerInvocations counts answerQuestion invocations by terminal outcome
	answerInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatbi_answer_invocations_total",
		Help: "answerQuestion invocations by outcome",
	}, []string{"outcome"})

	// answerFailures counts failed invocations by error kind
	answerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatbi_answer_failures_total",
		Help: "Failed answerQuestion invocations by error kind",
	}, []string{"kind"})

	// chartQueryDuration tracks engine latency per data source
	chartQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatbi_chart_query_duration_seconds",
		Help:    "Chart query duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
	}, []string{"data_source", "status"})

	// chartRows tracks rows returned per chart
	chartRows = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatbi_chart_rows",
		Help:    "Rows returned per chart query",
		Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
	})
)

// errorKind labels an error by its sentinel.
func errorKind(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrInvalidAnswer):
		return "invalid_answer"
	case errors.Is(err, apperrors.ErrMetadataUnavailable):
		return "metadata_unavailable"
	case errors.Is(err, apperrors.ErrUnresolvableDimension):
		return "unresolvable_dimension"
	case errors.Is(err, apperrors.ErrUnresolvableMeasure):
		return "unresolvable_measure"
	case errors.Is(err, apperrors.ErrUnresolvableSlicer):
		return "unresolvable_slicer"
	case errors.Is(err, apperrors.ErrQueryExecution):
		return "query_execution"
	case errors.Is(err, apperrors.ErrRender):
		return "render"
	default:
		return "internal"
	}
}
