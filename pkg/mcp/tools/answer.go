package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/llm"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/services"
)

// chatIDArg optionally ties an MCP call to a conversation, so the call can be
// torn down with it and its events reach the conversation's subscribers.
const chatIDArg = "chatId"

// AnswerToolDeps contains the dependencies of the answerQuestion MCP tool.
type AnswerToolDeps struct {
	Answers       services.ChatAnswerService
	Conversations *services.ConversationRegistry
	// Hub is optional. When set, events are also published to the chat.
	Hub    *services.ChatHub
	Logger *zap.Logger
}

// RegisterAnswerTool registers answerQuestion with the MCP server.
func RegisterAnswerTool(s *server.MCPServer, deps *AnswerToolDeps) {
	s.AddTool(answerQuestionTool(), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleAnswerQuestion(ctx, deps, req)
	})
}

func answerQuestionTool() mcp.Tool {
	tool := mcp.NewTool(
		llm.AnswerQuestionToolName,
		mcp.WithDescription(llm.AnswerQuestionDescription),
	)

	schema := llm.ChatAnswerSchema()
	properties := make(map[string]any)
	if props, ok := schema["properties"].(map[string]any); ok {
		for k, v := range props {
			properties[k] = v
		}
	}
	properties[chatIDArg] = map[string]any{
		"type":        "string",
		"description": "Conversation the chart belongs to (optional)",
	}
	tool.InputSchema.Properties = properties
	tool.InputSchema.Required = []string{"preface"}
	return tool
}

func handleAnswerQuestion(ctx context.Context, deps *AnswerToolDeps, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return NewErrorResult("invalid_parameters", "arguments must be an object"), nil
	}

	chatID, _ := args[chatIDArg].(string)
	if chatID == "" {
		chatID = "mcp-" + uuid.NewString()
	}

	answerArgs := make(map[string]any, len(args))
	for k, v := range args {
		if k != chatIDArg {
			answerArgs[k] = v
		}
	}
	raw, err := json.Marshal(answerArgs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode arguments: %w", err)
	}

	answer, err := models.DecodeChatAnswer(raw)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			return NewErrorResultWithDetails("invalid_parameters", verr.Error(), verr.Fields), nil
		}
		return NewErrorResult("invalid_parameters", err.Error()), nil
	}

	invocationCtx, release := deps.Conversations.Begin(ctx, chatID)
	defer release()

	// Two events at most: the preface and the chart.
	events := make(chan models.ChatEvent, 4)
	chat := &services.ChatContext{ChatID: chatID, Events: events}

	text, err := deps.Answers.AnswerQuestion(invocationCtx, chat, answer)
	close(events)
	if errors.Is(err, apperrors.ErrInvocationAbandoned) {
		deps.Logger.Info("answerQuestion abandoned", zap.String("chat_id", chatID))
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("answerQuestion failed: %w", err)
	}

	result := mcp.NewToolResultText(text)
	for event := range events {
		if deps.Hub != nil {
			deps.Hub.Publish(chatID, event)
		}
		if event.Type != models.ChatEventInteractive {
			continue
		}
		payload, err := json.Marshal(event)
		if err != nil {
			deps.Logger.Error("Failed to marshal chart event", zap.Error(err))
			continue
		}
		result.Content = append(result.Content, mcp.NewTextContent(string(payload)))
	}
	return result, nil
}
