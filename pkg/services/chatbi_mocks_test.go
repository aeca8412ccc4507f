package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
)

// fakeCore is an in-memory DSCoreService.
type fakeCore struct {
	entityTypes map[string]*models.EntityType // key: dataSource/entitySet

	// queryFn answers QueryChart; nil returns no rows.
	queryFn func(ctx context.Context, q *models.ChartQuery) (*datasource.QueryExecutionResult, error)

	selects atomic.Int32
	queries atomic.Int32

	mu        sync.Mutex
	lastQuery *models.ChartQuery
}

func newFakeCore() *fakeCore {
	return &fakeCore{
		entityTypes: map[string]*models.EntityType{"sales/orders": salesEntityType()},
	}
}

func (f *fakeCore) SelectEntitySet(ctx context.Context, dataSource, entitySet string) (*models.EntityType, error) {
	f.selects.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	et, ok := f.entityTypes[dataSource+"/"+entitySet]
	if !ok {
		return nil, fmt.Errorf("entity set %q in data source %q: %w", entitySet, dataSource, apperrors.ErrNotFound)
	}
	return et, nil
}

func (f *fakeCore) QueryChart(ctx context.Context, q *models.ChartQuery) (*datasource.QueryExecutionResult, error) {
	f.queries.Add(1)
	f.mu.Lock()
	f.lastQuery = q
	f.mu.Unlock()
	if f.queryFn == nil {
		return &datasource.QueryExecutionResult{}, nil
	}
	return f.queryFn(ctx, q)
}

func (f *fakeCore) TestConnection(ctx context.Context, dataSource string) error {
	return nil
}

func (f *fakeCore) Close() error {
	return nil
}

func (f *fakeCore) query() *models.ChartQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQuery
}

// rowsResult wraps rows in an engine result.
func rowsResult(rows []map[string]any) *datasource.QueryExecutionResult {
	return &datasource.QueryExecutionResult{Rows: rows, RowCount: len(rows)}
}

// dailyRevenueRows returns n rows keyed by order_date and revenue.
func dailyRevenueRows(n int) []map[string]any {
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{
			"order_date": fmt.Sprintf("2024-01-%02d", i%28+1),
			"revenue":    float64(10 * (i + 1)),
		}
	}
	return rows
}

var _ DSCoreService = (*fakeCore)(nil)
