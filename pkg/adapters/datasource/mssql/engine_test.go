package mssql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
)

func TestDialect_QuoteIdentifier(t *testing.T) {
	d := Dialect{}
	assert.Equal(t, "[order_date]", d.QuoteIdentifier("order_date"))
	assert.Equal(t, "[odd]]name]", d.QuoteIdentifier("odd]name"))
	assert.Equal(t, "[dbo].[orders]", datasource.QuoteTable(d, "[dbo].[orders]"))
}

func TestDialect_ChartSQL(t *testing.T) {
	q := &models.ChartQuery{
		EntityType: &models.EntityType{
			Name:       "orders",
			Table:      "dbo.orders",
			Dimensions: []*models.Dimension{{Name: "region"}},
			Measures:   []*models.Measure{{Name: "revenue", Column: "amount"}},
		},
		Annotation: &models.ChartAnnotation{
			ChartType:  models.ChartTypeBar,
			Dimensions: []models.ChartDimension{{Dimension: "region", Hierarchy: "region"}},
			Measures:   []models.ChartMeasure{{Measure: "revenue"}},
		},
		Slicers: []models.Slicer{
			{Dimension: models.ChartDimension{Dimension: "region", Hierarchy: "region"}, Members: []models.Member{{Key: "West"}, {Key: "East"}}},
		},
		Orders: []models.ChartOrder{{By: "revenue", Descending: true}},
		Top:    5,
	}

	stmt, err := datasource.BuildChartSQL(Dialect{}, q)
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT TOP (5) [region] AS [region], SUM([amount]) AS [revenue] FROM [dbo].[orders] WHERE [region] IN (@p1, @p2) GROUP BY [region] ORDER BY [revenue] DESC",
		stmt.SQL)
	assert.Equal(t, []any{"West", "East"}, stmt.Args)
}

func TestMapType(t *testing.T) {
	assert.Equal(t, "NUMERIC", mapType("decimal"))
	assert.Equal(t, "INT4", mapType("INT"))
	assert.Equal(t, "VARCHAR", mapType("NVARCHAR"))
	assert.Equal(t, "UNKNOWN", mapType("GEOGRAPHY"))
}
