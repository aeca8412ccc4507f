package services

import (
	"encoding/json"
	"fmt"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
)

// DefaultSummaryRowLimit caps the rows echoed back to the agent.
const DefaultSummaryRowLimit = 100

// AlreadyAnsweredMessage is returned when no chart was requested: the preface
// has already reached the user.
const AlreadyAnsweredMessage = "The answer has already been delivered to the user. Do not answer again."

const cardTemplate = "purple"

var chartKinds = map[string]string{
	models.ChartTypeLine:   "line",
	models.ChartTypeColumn: "bar",
	models.ChartTypeBar:    "bar",
	models.ChartTypePie:    "pie",
}

// Render builds the chart card for rows. It charts the first measure against
// the category dimension and passes every row through to the chart data.
func Render(a *models.ChartAnnotation, et *models.EntityType, rows []map[string]any) (*models.RenderPayload, error) {
	if a == nil || len(a.Measures) == 0 {
		return nil, fmt.Errorf("%w: annotation has no measure", apperrors.ErrRender)
	}
	kind, ok := chartKinds[a.ChartType]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported chart type %q", apperrors.ErrRender, a.ChartType)
	}
	category := a.CategoryDimension()
	if category == nil {
		return nil, fmt.Errorf("%w: %s chart needs a category dimension", apperrors.ErrRender, a.ChartType)
	}

	measure := a.Measures[0]
	categoryField := category.Hierarchy
	valueField := measure.Measure
	for i, row := range rows {
		if row == nil {
			return nil, fmt.Errorf("%w: row %d is empty", apperrors.ErrRender, i)
		}
		for _, field := range []string{categoryField, valueField} {
			if _, ok := row[field]; !ok {
				return nil, fmt.Errorf("%w: row %d has no field %q", apperrors.ErrRender, i, field)
			}
		}
	}

	values := rows
	if values == nil {
		values = []map[string]any{}
	}
	title := fmt.Sprintf("%s by %s", measureCaption(et, measure), dimensionCaption(et, *category))
	spec := &models.ChartSpec{
		Type:  kind,
		Title: models.ChartSpecText{Text: title},
		Data:  models.ChartData{Values: values},
	}

	switch a.ChartType {
	case models.ChartTypePie:
		spec.CategoryField = categoryField
		spec.ValueField = valueField
	case models.ChartTypeBar:
		spec.XField = valueField
		spec.YField = categoryField
		spec.Direction = "horizontal"
	default:
		spec.XField = categoryField
		spec.YField = valueField
	}

	return &models.RenderPayload{
		Header: models.CardHeader{
			Template: cardTemplate,
			Title:    models.CardTitle{Tag: "plain_text", Content: title},
		},
		Elements: []models.CardElement{{Tag: "chart", ChartSpec: spec}},
	}, nil
}

func measureCaption(et *models.EntityType, m models.ChartMeasure) string {
	if m.Caption != "" {
		return m.Caption
	}
	if et != nil {
		if def := et.FindMeasure(m.Measure); def != nil && def.Caption != "" {
			return def.Caption
		}
	}
	return m.Measure
}

func dimensionCaption(et *models.EntityType, d models.ChartDimension) string {
	if et != nil {
		if def := et.FindDimension(d.Dimension); def != nil {
			if d.Level != "" {
				if h := def.FindHierarchy(d.Hierarchy); h != nil {
					if l := h.FindLevel(d.Level); l != nil && l.Caption != "" {
						return l.Caption
					}
				}
				return d.Level
			}
			if def.Caption != "" {
				return def.Caption
			}
		}
	}
	return d.Dimension
}

// SummarizeRows renders at most limit rows as JSON for the agent.
func SummarizeRows(rows []map[string]any, limit int) string {
	if limit <= 0 {
		limit = DefaultSummaryRowLimit
	}
	shown := rows
	if len(shown) > limit {
		shown = shown[:limit]
	}
	if shown == nil {
		shown = []map[string]any{}
	}

	encoded, err := json.Marshal(shown)
	if err != nil {
		encoded = []byte(fmt.Sprintf("%v", shown))
	}
	return fmt.Sprintf("The chart has been shown to the user. First %d of %d rows of chart data: %s",
		len(shown), len(rows), encoded)
}

// Diagnostic turns a pipeline failure into the text returned to the agent.
func Diagnostic(err error) string {
	return fmt.Sprintf("An error occurred: %v. Do not retry automatically; if more information is needed, ask the user for it.", err)
}
