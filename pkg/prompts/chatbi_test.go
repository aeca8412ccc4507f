package prompts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
)

func TestBuildChatBISystemPrompt(t *testing.T) {
	et := &models.EntityType{
		Name:    "orders",
		Caption: "Sales Orders",
		Dimensions: []*models.Dimension{
			{Name: "order_date", Caption: "Order Date", Semantic: models.DimensionSemanticTime},
			{
				Name: "order_period",
				Hierarchies: []*models.Hierarchy{{
					Name:   "Calendar",
					Levels: []*models.Level{{Name: "Year"}, {Name: "Month"}},
				}},
			},
		},
		Measures: []*models.Measure{
			{Name: "revenue", Caption: "Revenue"},
			{Name: "order_count", Aggregator: models.AggregatorCount},
		},
		Variables: []*models.Variable{{Name: "target_region", ReferenceDimension: "region"}},
	}

	prompt := BuildChatBISystemPrompt(ChatBIContext{
		DataSource: "sales",
		EntitySet:  "orders",
		EntityType: et,
		Today:      time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC),
	})

	assert.Contains(t, prompt, "answerQuestion")
	assert.Contains(t, prompt, "Today is 2024-05-17.")
	assert.Contains(t, prompt, "- entitySet: `orders` (Sales Orders)")
	assert.Contains(t, prompt, "- `order_date` - Order Date [time]")
	assert.Contains(t, prompt, "  - hierarchy `Calendar`: Year > Month")
	assert.Contains(t, prompt, "- `revenue` - Revenue (sum)")
	assert.Contains(t, prompt, "- `order_count` (count)")
	assert.Contains(t, prompt, "- `target_region` filters `region`")
}

func TestBuildChatBISystemPrompt_NoDataset(t *testing.T) {
	prompt := BuildChatBISystemPrompt(ChatBIContext{})

	assert.Contains(t, prompt, "No dataset is selected")
	assert.NotContains(t, prompt, "## Measures")
}
