package llm

import (
	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
)

// AnswerQuestionToolName is the single tool the chart agent calls.
const AnswerQuestionToolName = "answerQuestion"

// AnswerQuestionDescription is the tool description shown to the model.
const AnswerQuestionDescription = "Create chart answer for the question"

// ToolDefinition defines a tool that can be called by the LLM.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// AnswerQuestionTool returns the answerQuestion definition with the
// ChatAnswer JSON schema as its parameters.
func AnswerQuestionTool() ToolDefinition {
	return ToolDefinition{
		Name:        AnswerQuestionToolName,
		Description: AnswerQuestionDescription,
		Parameters:  ChatAnswerSchema(),
	}
}

// ChatAnswerSchema describes models.ChatAnswer in JSON Schema.
func ChatAnswerSchema() map[string]any {
	slicerDimension := object(map[string]any{
		"dimension": str("Dimension name"),
		"hierarchy": str("Hierarchy name (optional)"),
		"level":     str("Level name (optional)"),
		"parameter": str("Variable name, for variable slicers"),
	})
	member := object(map[string]any{
		"key":     str("Member key"),
		"caption": str("Member caption (optional)"),
	}, "key")
	slicer := object(map[string]any{
		"dimension": slicerDimension,
		"members":   array(member, "Members to keep (or drop, with exclude)"),
		"exclude":   map[string]any{"type": "boolean", "description": "Drop the members instead of keeping them"},
	}, "dimension", "members")
	timeRange := object(map[string]any{
		"type":        enum("Standard uses start/end, Offset counts periods from the current date", models.TimeRangeStandard, models.TimeRangeOffset),
		"granularity": enum("Period size", models.GranularityYear, models.GranularityQuarter, models.GranularityMonth, models.GranularityWeek, models.GranularityDay),
		"start":       str("First period, e.g. 2024, 2024-Q1, 2024-03, 2024-W05 or 2024-03-01"),
		"end":         str("Last period, inclusive (defaults to start)"),
		"lookBack":    integer("Periods before the current one"),
		"lookAhead":   integer("Periods after the current one"),
	}, "type", "granularity")

	return object(map[string]any{
		"preface": str("Text answer shown to the user before any chart"),
		"dataSettings": object(map[string]any{
			"dataSource": str("Data source name"),
			"entitySet":  str("Entity set name"),
		}, "dataSource", "entitySet"),
		"chartType": object(map[string]any{
			"type": enum("Chart kind", models.ChartTypeColumn, models.ChartTypeLine, models.ChartTypePie, models.ChartTypeBar),
		}, "type"),
		"dimensions": array(object(map[string]any{
			"dimension": str("Dimension name"),
			"hierarchy": str("Hierarchy name (optional)"),
			"level":     str("Level name (optional)"),
			"role":      enum("Role in the chart", "Category", "Category2", "Group", "Stacked", "Time"),
		}, "dimension"), "Dimensions to group by"),
		"measures": array(object(map[string]any{
			"measure": str("Measure name"),
			"caption": str("Display caption (optional)"),
			"role":    enum("Axis", "Axis1", "Axis2"),
		}, "measure"), "Measures to chart; the first one is plotted"),
		"orders": array(object(map[string]any{
			"by":    str("Dimension or measure name"),
			"order": enum("Sort direction", "ASC", "DESC"),
		}, "by"), "Sort order"),
		"top":         integer("Maximum number of rows"),
		"slicers":     array(slicer, "Member filters"),
		"timeSlicers": array(object(map[string]any{"dimension": slicerDimension, "currentDate": str("TODAY or YYYY-MM-DD"), "ranges": array(timeRange, "Date ranges")}, "ranges"), "Date filters"),
		"variables":   array(slicer, "Variable values; dimension.parameter names the variable"),
		"conclusion":  str("Optional closing remark"),
	}, "preface")
}

func object(properties map[string]any, required ...string) map[string]any {
	o := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		o["required"] = required
	}
	return o
}

func array(items map[string]any, description string) map[string]any {
	return map[string]any{"type": "array", "items": items, "description": description}
}

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func integer(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

func enum(description string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": description, "enum": values}
}
