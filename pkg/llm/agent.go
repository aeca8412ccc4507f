package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/prompts"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/services"
)

// AgentRequest is one user turn in a conversation.
type AgentRequest struct {
	ChatID  string
	Message string
	History []Message
	// DataSettings selects the conversation's dataset. It becomes the default
	// for answers that draw a chart without naming one.
	DataSettings *models.DataSettings
}

// ChartAgent answers user questions through the answerQuestion tool.
type ChartAgent struct {
	client   *Client
	answers  services.ChatAnswerService
	resolver services.MetadataResolver
	now      func() time.Time
	logger   *zap.Logger
}

// NewChartAgent creates a chart agent.
func NewChartAgent(client *Client, answers services.ChatAnswerService, resolver services.MetadataResolver, logger *zap.Logger) *ChartAgent {
	return &ChartAgent{
		client:   client,
		answers:  answers,
		resolver: resolver,
		now:      time.Now,
		logger:   logger.Named("chart-agent"),
	}
}

// Chat runs one turn and streams its events, ending with a done or an error
// event. It returns apperrors.ErrInvocationAbandoned when ctx ends during the
// turn, and then no closing event is sent.
func (a *ChartAgent) Chat(ctx context.Context, req *AgentRequest, events chan<- models.ChatEvent) error {
	chat := &services.ChatContext{ChatID: req.ChatID, Events: events}
	promptCtx := prompts.ChatBIContext{Today: a.now()}

	if req.DataSettings != nil {
		et, err := a.resolver.Resolve(ctx, *req.DataSettings)
		if err != nil {
			if ctx.Err() != nil {
				return apperrors.ErrInvocationAbandoned
			}
			err = fmt.Errorf("failed to load dataset: %w", err)
			_ = send(ctx, events, models.NewErrorEvent(err.Error()))
			return err
		}
		settings := *req.DataSettings
		chat.DefaultDataSettings = &settings
		chat.DefaultEntityType = et
		promptCtx.DataSource = settings.DataSource
		promptCtx.EntitySet = settings.EntitySet
		promptCtx.EntityType = et
	}

	messages := make([]Message, 0, len(req.History)+1)
	messages = append(messages, req.History...)
	messages = append(messages, Message{Role: RoleUser, Content: req.Message})

	a.logger.Debug("Starting chat turn",
		zap.String("chat_id", req.ChatID),
		zap.Int("history", len(req.History)),
		zap.Bool("has_dataset", chat.DefaultEntityType != nil))

	executor := NewChartToolExecutor(a.answers, chat, a.logger)
	return a.client.StreamWithTools(WithChatID(ctx, req.ChatID), &StreamingRequest{
		Messages:     messages,
		Tools:        []ToolDefinition{AnswerQuestionTool()},
		SystemPrompt: prompts.BuildChatBISystemPrompt(promptCtx),
	}, executor, events)
}
