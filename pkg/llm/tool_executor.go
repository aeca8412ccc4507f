package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/services"
)

// ChartToolExecutor implements ToolExecutor for the chart agent.
type ChartToolExecutor struct {
	answers services.ChatAnswerService
	chat    *services.ChatContext
	logger  *zap.Logger
}

// NewChartToolExecutor binds the answerQuestion tool to one conversation.
func NewChartToolExecutor(answers services.ChatAnswerService, chat *services.ChatContext, logger *zap.Logger) *ChartToolExecutor {
	return &ChartToolExecutor{
		answers: answers,
		chat:    chat,
		logger:  logger.Named("tool-executor"),
	}
}

var _ ToolExecutor = (*ChartToolExecutor)(nil)

// ExecuteTool dispatches a tool call. Malformed arguments come back as a
// diagnostic for the model rather than an error.
func (e *ChartToolExecutor) ExecuteTool(ctx context.Context, name string, arguments string) (string, error) {
	e.logger.Debug("Executing tool",
		zap.String("tool", name),
		zap.Int("arguments_len", len(arguments)))

	switch name {
	case AnswerQuestionToolName:
		answer, err := models.DecodeChatAnswer([]byte(arguments))
		if err != nil {
			return services.Diagnostic(err), nil
		}
		return e.answers.AnswerQuestion(ctx, e.chat, answer)
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}
