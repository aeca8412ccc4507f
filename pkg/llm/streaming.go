package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
)

// Message role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one chat message.
type Message struct {
	Role       string            `json:"role"`
	Content    string            `json:"content"`
	ToolCalls  []models.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
}

// StreamingRequest is a chat turn.
type StreamingRequest struct {
	Messages     []Message
	Tools        []ToolDefinition
	Temperature  float64
	SystemPrompt string
}

// ToolExecutor executes tool calls requested by the model.
type ToolExecutor interface {
	ExecuteTool(ctx context.Context, name string, arguments string) (string, error)
}

var (
	textToolCallPattern = regexp.MustCompile(`<tool_call>\s*(\{[\s\S]*?\})\s*</tool_call>`)
	thinkPattern        = regexp.MustCompile(`<think>[\s\S]*?</think>`)
	toolCallPattern     = regexp.MustCompile(`<tool_call>[\s\S]*?</tool_call>`)
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
)

// StreamWithTools runs one chat turn, streaming text and tool activity to
// events until the model stops calling tools. It ends with a done event, or
// an error event on failure. A tool returning ErrInvocationAbandoned ends the
// turn silently with that error.
func (c *Client) StreamWithTools(
	ctx context.Context,
	req *StreamingRequest,
	executor ToolExecutor,
	events chan<- models.ChatEvent,
) error {
	messages := buildOpenAIMessages(req.Messages, req.SystemPrompt)
	tools := buildOpenAITools(req.Tools)

	temperature := float32(req.Temperature)
	if temperature == 0 {
		temperature = 0.2
	}

	for iteration := 0; iteration < c.maxToolIterations; iteration++ {
		content, toolCalls, err := c.streamIteration(ctx, messages, tools, temperature, events)
		if err != nil {
			if ctx.Err() != nil {
				return apperrors.ErrInvocationAbandoned
			}
			_ = send(ctx, events, models.NewErrorEvent(err.Error()))
			return err
		}

		if len(toolCalls) == 0 {
			if err := send(ctx, events, models.NewDoneEvent()); err != nil {
				return apperrors.ErrInvocationAbandoned
			}
			return nil
		}

		assistantMsg := openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: content,
		}
		for _, tc := range toolCalls {
			assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, toOpenAIToolCall(tc))
		}
		messages = append(messages, assistantMsg)

		for _, tc := range toolCalls {
			if err := send(ctx, events, models.NewToolCallEvent(tc)); err != nil {
				return apperrors.ErrInvocationAbandoned
			}

			result, execErr := executor.ExecuteTool(ctx, tc.Function.Name, tc.Function.Arguments)
			if errors.Is(execErr, apperrors.ErrInvocationAbandoned) {
				return execErr
			}
			if execErr != nil {
				result = fmt.Sprintf("Error executing tool: %s", execErr.Error())
			}

			if err := send(ctx, events, models.NewToolResultEvent(tc.ID, result)); err != nil {
				return apperrors.ErrInvocationAbandoned
			}

			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
	}

	err := fmt.Errorf("exceeded maximum tool iterations (%d)", c.maxToolIterations)
	_ = send(ctx, events, models.NewErrorEvent(err.Error()))
	return err
}

// streamIteration performs one streaming request and returns the text and
// the tool calls it produced.
func (c *Client) streamIteration(
	ctx context.Context,
	messages []openai.ChatCompletionMessage,
	tools []openai.Tool,
	temperature float32,
	events chan<- models.ChatEvent,
) (string, []models.ToolCall, error) {
	start := time.Now()

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Tools:       tools,
		Temperature: temperature,
		Stream:      true,
	})
	if err != nil {
		c.logger.Error("Failed to create stream", zap.Error(err))
		return "", nil, ClassifyError(err)
	}
	defer stream.Close()

	var contentBuilder strings.Builder
	toolCallsMap := make(map[int]*models.ToolCall)

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			c.logger.Error("Stream receive error", zap.Error(err))
			return "", nil, ClassifyError(err)
		}
		if len(response.Choices) == 0 {
			continue
		}

		delta := response.Choices[0].Delta
		if delta.Content != "" {
			contentBuilder.WriteString(delta.Content)
			if err := send(ctx, events, models.NewTextEvent(delta.Content)); err != nil {
				return "", nil, err
			}
		}

		// Tool call arguments arrive in fragments keyed by index.
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			if existing, ok := toolCallsMap[idx]; ok {
				existing.Function.Arguments += tc.Function.Arguments
				continue
			}
			toolCallsMap[idx] = &models.ToolCall{
				ID:   tc.ID,
				Type: string(tc.Type),
				Function: models.ToolCallFunction{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			}
		}
	}

	content := contentBuilder.String()

	// Models without native tool calling emit <tool_call> markup instead.
	if len(toolCallsMap) == 0 && content != "" {
		parsed := parseTextToolCalls(content, c.logger)
		if len(parsed) > 0 {
			content = cleanModelOutput(content)
			for i := range parsed {
				toolCallsMap[i] = &parsed[i]
			}
		}
	}

	toolCalls := make([]models.ToolCall, 0, len(toolCallsMap))
	for i := 0; i < len(toolCallsMap); i++ {
		if tc, ok := toolCallsMap[i]; ok {
			toolCalls = append(toolCalls, *tc)
		}
	}

	c.logger.Info("Stream iteration completed",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("content_length", len(content)),
		zap.Int("tool_calls", len(toolCalls)))

	return content, toolCalls, nil
}

// parseTextToolCalls extracts <tool_call>{"name": ..., "arguments": {...}}</tool_call> blocks.
func parseTextToolCalls(content string, logger *zap.Logger) []models.ToolCall {
	var toolCalls []models.ToolCall

	for i, match := range textToolCallPattern.FindAllStringSubmatch(content, -1) {
		var call struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := json.Unmarshal([]byte(match[1]), &call); err != nil {
			logger.Debug("Failed to parse text tool call", zap.Error(err))
			continue
		}
		args, err := json.Marshal(call.Arguments)
		if err != nil {
			continue
		}
		toolCalls = append(toolCalls, models.ToolCall{
			ID:   fmt.Sprintf("text_tool_%d", i),
			Type: "function",
			Function: models.ToolCallFunction{
				Name:      call.Name,
				Arguments: string(args),
			},
		})
	}

	return toolCalls
}

// cleanModelOutput removes tool call markup and thinking blocks.
func cleanModelOutput(content string) string {
	content = thinkPattern.ReplaceAllString(content, "")
	content = toolCallPattern.ReplaceAllString(content, "")
	content = multiNewlinePattern.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}

func buildOpenAIMessages(messages []Message, systemPrompt string) []openai.ChatCompletionMessage {
	var result []openai.ChatCompletionMessage
	if systemPrompt != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}

	for _, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, toOpenAIToolCall(tc))
		}
		result = append(result, oaiMsg)
	}

	return result
}

func buildOpenAITools(tools []ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}

	result := make([]openai.Tool, len(tools))
	for i, def := range tools {
		params, _ := json.Marshal(def.Parameters)
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  json.RawMessage(params),
			},
		}
	}
	return result
}

func toOpenAIToolCall(tc models.ToolCall) openai.ToolCall {
	return openai.ToolCall{
		ID:   tc.ID,
		Type: openai.ToolTypeFunction,
		Function: openai.FunctionCall{
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		},
	}
}

// send delivers an event unless ctx ends first.
func send(ctx context.Context, events chan<- models.ChatEvent, event models.ChatEvent) error {
	select {
	case events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
