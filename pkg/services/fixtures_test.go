package services

import (
	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
)

// salesEntityType mirrors pkg/semantic/testdata/sales.yaml.
func salesEntityType() *models.EntityType {
	return &models.EntityType{
		Name:    "orders",
		Caption: "Sales Orders",
		Table:   "public.orders",
		Dimensions: []*models.Dimension{
			{Name: "order_date", Caption: "Order Date", Semantic: models.DimensionSemanticTime, Aliases: []string{"date", "day"}},
			{
				Name:    "order_period",
				Caption: "Order Period",
				Hierarchies: []*models.Hierarchy{
					{
						Name:    "Calendar",
						Aliases: []string{"calendar hierarchy"},
						Levels: []*models.Level{
							{Name: "Year", Column: "order_year"},
							{Name: "Month", Column: "order_month"},
						},
					},
				},
			},
			{Name: "region", Caption: "Sales Region", Aliases: []string{"territory"}},
		},
		Measures: []*models.Measure{
			{Name: "revenue", Caption: "Revenue", Column: "amount", Aliases: []string{"sales"}},
			{Name: "order_count", Caption: "Orders", Column: "id", Aggregator: models.AggregatorCount},
		},
		Variables: []*models.Variable{
			{Name: "target_region", Caption: "Target Region", ReferenceDimension: "region"},
		},
	}
}

func lineChartAnswer() *models.ChatAnswer {
	return &models.ChatAnswer{
		Preface:      "Revenue by day.",
		DataSettings: &models.DataSettings{DataSource: "sales", EntitySet: "orders"},
		ChartType:    &models.ChartType{Type: models.ChartTypeLine},
		Dimensions:   []models.DimensionSpec{{Dimension: "order_date"}},
		Measures:     []models.MeasureSpec{{Measure: "revenue"}},
	}
}
