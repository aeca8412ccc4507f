package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswerQuestionTool(t *testing.T) {
	tool := AnswerQuestionTool()

	assert.Equal(t, "answerQuestion", tool.Name)
	assert.Equal(t, "Create chart answer for the question", tool.Description)
	assert.Equal(t, "object", tool.Parameters["type"])
	assert.Equal(t, []string{"preface"}, tool.Parameters["required"])

	props := tool.Parameters["properties"].(map[string]any)
	for _, field := range []string{"preface", "dataSettings", "chartType", "dimensions", "measures", "orders", "top", "slicers", "timeSlicers", "variables"} {
		assert.Contains(t, props, field)
	}

	chartType := props["chartType"].(map[string]any)["properties"].(map[string]any)["type"].(map[string]any)
	assert.Equal(t, []string{"Column", "Line", "Pie", "Bar"}, chartType["enum"])
}

func TestChatAnswerSchema_IsValidJSON(t *testing.T) {
	raw, err := json.Marshal(ChatAnswerSchema())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "object", decoded["type"])
}

func TestBuildOpenAITools(t *testing.T) {
	tools := buildOpenAITools([]ToolDefinition{AnswerQuestionTool()})

	require.Len(t, tools, 1)
	assert.Equal(t, "answerQuestion", tools[0].Function.Name)
	params, ok := tools[0].Function.Parameters.(json.RawMessage)
	require.True(t, ok)
	assert.Contains(t, string(params), `"preface"`)

	assert.Nil(t, buildOpenAITools(nil))
}
