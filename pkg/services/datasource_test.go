package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
)

type stubCatalog struct {
	dataSources map[string]*models.DataSource
}

func (c *stubCatalog) DataSource(ctx context.Context, name string) (*models.DataSource, error) {
	ds, ok := c.dataSources[name]
	if !ok {
		return nil, fmt.Errorf("data source %q: %w", name, apperrors.ErrNotFound)
	}
	return ds, nil
}

func (c *stubCatalog) SelectEntitySet(ctx context.Context, dataSource, entitySet string) (*models.EntitySet, error) {
	ds, err := c.DataSource(ctx, dataSource)
	if err != nil {
		return nil, err
	}
	es, ok := ds.EntitySets[entitySet]
	if !ok {
		return nil, fmt.Errorf("entity set %q in data source %q: %w", entitySet, dataSource, apperrors.ErrNotFound)
	}
	return es, nil
}

type stubEngine struct {
	rows    []map[string]any
	testErr error
	closed  bool
}

func (e *stubEngine) TestConnection(ctx context.Context) error { return e.testErr }

func (e *stubEngine) Close() error {
	e.closed = true
	return nil
}

func (e *stubEngine) QueryChart(ctx context.Context, q *models.ChartQuery) (*datasource.QueryExecutionResult, error) {
	return rowsResult(e.rows), nil
}

type stubFactory struct {
	mu      sync.Mutex
	created map[string]int
	engine  *stubEngine
	err     error
}

func (f *stubFactory) NewChartEngine(ctx context.Context, ds *models.DataSource) (datasource.ChartEngine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.created == nil {
		f.created = make(map[string]int)
	}
	f.created[ds.Name]++
	return f.engine, nil
}

func (f *stubFactory) ListTypes() []datasource.DatasourceAdapterInfo { return nil }

func salesCatalog() *stubCatalog {
	return &stubCatalog{dataSources: map[string]*models.DataSource{
		"sales": {
			Name: "sales",
			Type: "postgres",
			EntitySets: map[string]*models.EntitySet{
				"orders":  {Name: "orders", EntityType: salesEntityType()},
				"returns": {Name: "returns"},
			},
		},
	}}
}

func TestDSCore_SelectEntitySet(t *testing.T) {
	core := NewDSCoreService(salesCatalog(), &stubFactory{}, zap.NewNop())

	et, err := core.SelectEntitySet(context.Background(), "sales", "orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", et.Name)

	_, err = core.SelectEntitySet(context.Background(), "sales", "refunds")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = core.SelectEntitySet(context.Background(), "sales", "returns")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no entity type")
}

func TestDSCore_EngineCreatedOncePerDataSource(t *testing.T) {
	engine := &stubEngine{rows: dailyRevenueRows(2)}
	factory := &stubFactory{engine: engine}
	core := NewDSCoreService(salesCatalog(), factory, zap.NewNop())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := core.QueryChart(context.Background(), testChartQuery())
			assert.NoError(t, err)
			assert.Len(t, res.Rows, 2)
		}()
	}
	wg.Wait()

	require.NoError(t, core.TestConnection(context.Background(), "sales"))
	assert.Equal(t, 1, factory.created["sales"])

	require.NoError(t, core.Close())
	assert.True(t, engine.closed)
}

func TestDSCore_UnknownDataSource(t *testing.T) {
	core := NewDSCoreService(salesCatalog(), &stubFactory{}, zap.NewNop())

	q := testChartQuery()
	q.DataSource = "finance"
	_, err := core.QueryChart(context.Background(), q)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestDSCore_FactoryError(t *testing.T) {
	factory := &stubFactory{err: errors.New(`unsupported data source type "oracle"`)}
	core := NewDSCoreService(salesCatalog(), factory, zap.NewNop())

	err := core.TestConnection(context.Background(), "sales")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `create postgres engine for "sales"`)
}
