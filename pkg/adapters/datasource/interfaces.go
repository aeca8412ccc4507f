package datasource

import (
	"context"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
)

// ConnectionTester tests data source connectivity.
type ConnectionTester interface {
	// TestConnection verifies the backend is reachable with valid credentials.
	TestConnection(ctx context.Context) error

	// Close releases resources owned by the implementation. Pools held by the
	// ConnectionManager stay open until their TTL expires.
	Close() error
}

// ChartEngine executes canonical chart queries against one data source.
// Implementations must be safe for concurrent use; one engine is shared by
// every invocation that targets the same data source.
type ChartEngine interface {
	ConnectionTester

	// QueryChart issues exactly one query for the request and returns its
	// rows. Row keys are hierarchy names for dimensions and measure names for
	// measures. Engine-side failures are returned as errors; the caller turns
	// them into a failed QueryResult.
	QueryChart(ctx context.Context, q *models.ChartQuery) (*QueryExecutionResult, error)
}

// MaxQueryLimit caps the rows a chart query may return.
const MaxQueryLimit = 1000

// ColumnInfo describes a result column.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QueryExecutionResult holds the rows of a chart query.
type QueryExecutionResult struct {
	Columns  []ColumnInfo     `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}
