package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/testhelpers"
)

func ordersEntityType() *models.EntityType {
	return &models.EntityType{
		Name:  "orders",
		Table: "orders",
		Dimensions: []*models.Dimension{
			{Name: "order_date", Semantic: models.DimensionSemanticTime},
			{Name: "order_month"},
			{Name: "region"},
		},
		Measures: []*models.Measure{
			{Name: "revenue", Column: "amount"},
			{Name: "order_count", Column: "id", Aggregator: models.AggregatorCount},
		},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	db := testhelpers.GetSalesDB(t)

	cfg, err := FromMap(db.DataSourceConfig())
	require.NoError(t, err)

	connMgr := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{}, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = connMgr.Close() })

	engine, err := NewEngine(context.Background(), cfg, connMgr, "sales")
	require.NoError(t, err)
	return engine
}

func TestEngine_TestConnection(t *testing.T) {
	engine := newTestEngine(t)
	require.NoError(t, engine.TestConnection(context.Background()))
}

func TestEngine_QueryChart_MonthlyRevenue(t *testing.T) {
	engine := newTestEngine(t)

	result, err := engine.QueryChart(context.Background(), &models.ChartQuery{
		EntityType: ordersEntityType(),
		Annotation: &models.ChartAnnotation{
			ChartType:  models.ChartTypeLine,
			Dimensions: []models.ChartDimension{{Dimension: "order_month", Hierarchy: "order_month"}},
			Measures:   []models.ChartMeasure{{Measure: "revenue"}},
		},
	})
	require.NoError(t, err)

	require.Equal(t, 12, result.RowCount)
	assert.Equal(t, "2024-01", result.Rows[0]["order_month"])
	assert.InDelta(t, 30.0, result.Rows[0]["revenue"], 0.001)
	assert.Equal(t, "2024-12", result.Rows[11]["order_month"])
	assert.InDelta(t, 360.0, result.Rows[11]["revenue"], 0.001)
	assert.Equal(t, "NUMERIC", result.Columns[1].Type)
}

func TestEngine_QueryChart_SlicersAndTop(t *testing.T) {
	engine := newTestEngine(t)

	result, err := engine.QueryChart(context.Background(), &models.ChartQuery{
		EntityType: ordersEntityType(),
		Annotation: &models.ChartAnnotation{
			ChartType:  models.ChartTypeBar,
			Dimensions: []models.ChartDimension{{Dimension: "region", Hierarchy: "region"}},
			Measures:   []models.ChartMeasure{{Measure: "order_count"}},
		},
		Slicers: []models.Slicer{
			{Dimension: models.ChartDimension{Dimension: "region", Hierarchy: "region"}, Members: []models.Member{{Key: "North"}}, Exclude: true},
			{Dimension: models.ChartDimension{Dimension: "order_date", Hierarchy: "order_date"}, Ranges: []models.DateRange{{
				From: time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
				To:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			}}},
		},
		Orders: []models.ChartOrder{{By: "region", Descending: true}},
		Top:    1,
	})
	require.NoError(t, err)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, "West", result.Rows[0]["region"])
	assert.Equal(t, int64(12), result.Rows[0]["order_count"])
}

func TestEngine_QueryChart_EngineError(t *testing.T) {
	engine := newTestEngine(t)

	et := ordersEntityType()
	et.Table = "missing_table"
	_, err := engine.QueryChart(context.Background(), &models.ChartQuery{
		EntityType: et,
		Annotation: &models.ChartAnnotation{Measures: []models.ChartMeasure{{Measure: "revenue"}}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing_table")
}
