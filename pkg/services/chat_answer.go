package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/audit"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
	sqlcheck "github.com/ekaya-inc/ekaya-chatbi/pkg/sql"
)

// ChatContext is the conversation an invocation answers into.
type ChatContext struct {
	ChatID string

	// Events receives the preface and the chart card. Nil discards them.
	Events chan<- models.ChatEvent

	// Defaults used when the answer carries a chart but no data settings.
	DefaultDataSettings *models.DataSettings
	DefaultEntityType   *models.EntityType
}

// ChatAnswerService implements the answerQuestion tool.
type ChatAnswerService interface {
	// AnswerQuestion runs one invocation and returns the text for the agent:
	// a row summary, the fixed already-answered string or a diagnostic.
	// The only error is apperrors.ErrInvocationAbandoned, returned when ctx
	// ends before the invocation completes; nothing is published after that.
	AnswerQuestion(ctx context.Context, chat *ChatContext, answer *models.ChatAnswer) (string, error)
}

// ChatAnswerConfig tunes ChatAnswerService.
type ChatAnswerConfig struct {
	SummaryRowLimit int
	QueryTimeout    time.Duration
	NotifyOnFailure bool
}

// invocation states, used in logs
const (
	stateValidating        = "validating"
	stateResolvingMetadata = "resolving_metadata"
	stateRepairingIntent   = "repairing_intent"
	stateQuerying          = "querying"
	stateRendering         = "rendering"
	stateFailed            = "failed"
	stateDone              = "done"
)

type chatAnswerService struct {
	core     DSCoreService
	resolver MetadataResolver
	repairer *IntentRepairer
	notifier Notifier
	auditor  *audit.SecurityAuditor
	cfg      ChatAnswerConfig
	logger   *zap.Logger
}

// NewChatAnswerService wires the answerQuestion pipeline. notifier may be nil.
func NewChatAnswerService(
	core DSCoreService,
	resolver MetadataResolver,
	repairer *IntentRepairer,
	notifier Notifier,
	cfg ChatAnswerConfig,
	logger *zap.Logger,
) ChatAnswerService {
	if cfg.SummaryRowLimit <= 0 {
		cfg.SummaryRowLimit = DefaultSummaryRowLimit
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	return &chatAnswerService{
		core:     core,
		resolver: resolver,
		repairer: repairer,
		notifier: notifier,
		auditor:  audit.NewSecurityAuditor(logger),
		cfg:      cfg,
		logger:   logger.Named("chat-answer"),
	}
}

// invocation carries the per-call state through the pipeline.
type invocation struct {
	id         uuid.UUID
	chat       *ChatContext
	state      string
	dataSource string
	logger     *zap.Logger
	span       trace.Span
}

func (inv *invocation) enter(state string) {
	inv.state = state
	inv.logger.Debug("answerQuestion state", zap.String("state", state))
}

func (s *chatAnswerService) AnswerQuestion(ctx context.Context, chat *ChatContext, answer *models.ChatAnswer) (string, error) {
	if chat == nil {
		chat = &ChatContext{}
	}
	ctx, span := tracer.Start(ctx, "chatbi.answerQuestion",
		trace.WithAttributes(attribute.String("chat.id", chat.ChatID)))
	defer span.End()

	inv := &invocation{
		id:   uuid.New(),
		chat: chat,
		span: span,
	}
	inv.logger = s.logger.With(
		zap.String("chat_id", chat.ChatID),
		zap.String("invocation_id", inv.id.String()),
	)

	inv.enter(stateValidating)
	if answer == nil {
		return s.fail(ctx, inv, fmt.Errorf("%w: no answer", apperrors.ErrInvalidAnswer))
	}
	if err := answer.Validate(); err != nil {
		return s.fail(ctx, inv, err)
	}
	if err := s.publish(ctx, chat, models.NewTextEvent(answer.Preface)); err != nil {
		return s.abandon(inv)
	}

	inv.enter(stateResolvingMetadata)
	var et *models.EntityType
	if answer.DataSettings != nil {
		resolved, err := s.resolve(ctx, *answer.DataSettings)
		if err != nil {
			return s.fail(ctx, inv, err)
		}
		et = resolved
	}

	if !answer.HasChart() {
		inv.enter(stateDone)
		answerInvocations.WithLabelValues(outcomeAnswered).Inc()
		return AlreadyAnsweredMessage, nil
	}

	settings := answer.DataSettings
	if settings == nil {
		settings = chat.DefaultDataSettings
		et = chat.DefaultEntityType
	}
	if settings == nil {
		return s.fail(ctx, inv, fmt.Errorf("%w: the answer has a chart but no data settings", apperrors.ErrMetadataUnavailable))
	}
	if et == nil {
		resolved, err := s.resolve(ctx, *settings)
		if err != nil {
			return s.fail(ctx, inv, err)
		}
		et = resolved
	}

	inv.dataSource = settings.DataSource
	inv.enter(stateRepairingIntent)
	_, repairSpan := tracer.Start(ctx, "chatbi.repairIntent")
	query, err := s.repairer.Repair(answer, *settings, et)
	endSpan(repairSpan, err)
	if err != nil {
		return s.fail(ctx, inv, err)
	}

	inv.enter(stateQuerying)
	result, err := s.query(ctx, inv, query)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvocationAbandoned) {
			return s.abandon(inv)
		}
		return s.fail(ctx, inv, err)
	}
	if result.Failed() {
		return s.fail(ctx, inv, fmt.Errorf("%w: %s", apperrors.ErrQueryExecution, result.Error))
	}

	inv.enter(stateRendering)
	_, renderSpan := tracer.Start(ctx, "chatbi.render")
	payload, err := Render(query.Annotation, et, result.Data)
	endSpan(renderSpan, err)
	if err != nil {
		return s.fail(ctx, inv, err)
	}

	// The query may have finished just as the conversation was torn down.
	if ctx.Err() != nil {
		return s.abandon(inv)
	}
	if err := s.publish(ctx, chat, models.NewInteractiveEvent(inv.id, payload)); err != nil {
		return s.abandon(inv)
	}

	inv.enter(stateDone)
	chartRows.Observe(float64(len(result.Data)))
	answerInvocations.WithLabelValues(outcomeRendered).Inc()
	inv.logger.Info("Chart delivered",
		zap.String("data_source", query.DataSource),
		zap.String("entity_set", query.EntitySet),
		zap.String("chart_type", query.Annotation.ChartType),
		zap.Int("rows", len(result.Data)),
	)
	return SummarizeRows(result.Data, s.cfg.SummaryRowLimit), nil
}

func (s *chatAnswerService) resolve(ctx context.Context, settings models.DataSettings) (*models.EntityType, error) {
	ctx, span := tracer.Start(ctx, "chatbi.resolveMetadata", trace.WithAttributes(
		attribute.String("data_source", settings.DataSource),
		attribute.String("entity_set", settings.EntitySet),
	))
	et, err := s.resolver.Resolve(ctx, settings)
	endSpan(span, err)
	return et, err
}

// query runs the single chart query of the invocation.
func (s *chatAnswerService) query(ctx context.Context, inv *invocation, q *models.ChartQuery) (*models.QueryResult, error) {
	ctx, span := tracer.Start(ctx, "chatbi.queryChart", trace.WithAttributes(
		attribute.String("data_source", q.DataSource),
		attribute.String("entity_set", q.EntitySet),
	))

	session := NewQuerySession(s.core, s.cfg.QueryTimeout, inv.logger)
	defer session.Close()

	start := time.Now()
	result, err := session.Execute(ctx, q)
	elapsed := time.Since(start)

	status := "ok"
	switch {
	case err != nil:
		status = "abandoned"
		endSpan(span, err)
	case result.Failed():
		status = "error"
		endSpan(span, errors.New(result.Error))
	default:
		endSpan(span, nil)
	}
	chartQueryDuration.WithLabelValues(q.DataSource, status).Observe(elapsed.Seconds())

	inv.logger.Debug("Chart query finished",
		zap.String("status", status),
		zap.Duration("elapsed", elapsed),
	)
	return result, err
}

// publish sends one event to the conversation unless ctx ends first.
func (s *chatAnswerService) publish(ctx context.Context, chat *ChatContext, event models.ChatEvent) error {
	if chat.Events == nil {
		return ctx.Err()
	}
	select {
	case chat.Events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fail turns err into the diagnostic returned to the agent. A failure caused
// by the context ending is an abandonment instead.
func (s *chatAnswerService) fail(ctx context.Context, inv *invocation, err error) (string, error) {
	if ctx.Err() != nil {
		return s.abandon(inv)
	}

	failedIn := inv.state
	inv.enter(stateFailed)
	kind := errorKind(err)
	answerInvocations.WithLabelValues(outcomeFailed).Inc()
	answerFailures.WithLabelValues(kind).Inc()
	inv.span.RecordError(err)
	inv.span.SetStatus(codes.Error, kind)

	fields := []zap.Field{
		zap.String("failed_in", failedIn),
		zap.String("kind", kind),
		zap.Error(err),
	}
	switch kind {
	case "query_execution", "render", "internal":
		inv.logger.Error("answerQuestion failed", fields...)
	default:
		inv.logger.Debug("answerQuestion failed", fields...)
	}

	var hit *sqlcheck.InjectionCheckResult
	switch {
	case errors.As(err, &hit):
		s.auditor.LogInjectionAttempt(inv.chat.ChatID, inv.id, inv.dataSource, hit)
	case errors.Is(err, apperrors.ErrInvalidAnswer):
		s.auditor.LogInvalidAnswer(inv.chat.ChatID, inv.id, err.Error())
	}

	diagnostic := Diagnostic(err)
	if s.cfg.NotifyOnFailure && s.notifier != nil && inv.chat.ChatID != "" {
		if nerr := s.notifier.NotifyText(ctx, inv.chat.ChatID, diagnostic); nerr != nil {
			inv.logger.Warn("Failed to notify chat", zap.Error(nerr))
		}
	}
	return diagnostic, nil
}

func (s *chatAnswerService) abandon(inv *invocation) (string, error) {
	answerInvocations.WithLabelValues(outcomeAbandoned).Inc()
	inv.span.SetStatus(codes.Error, outcomeAbandoned)
	inv.logger.Info("answerQuestion abandoned", zap.String("state", inv.state))
	return "", apperrors.ErrInvocationAbandoned
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

var _ ChatAnswerService = (*chatAnswerService)(nil)
