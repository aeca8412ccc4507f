// Package audit writes security events as structured JSON log lines for SIEM
// ingestion.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	sqlcheck "github.com/ekaya-inc/ekaya-chatbi/pkg/sql"
)

// SecurityEventType categorizes security events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionAttempt is logged when libinjection flags a filter value
	// emitted for a chart.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventInvalidAnswer is logged when answerQuestion arguments fail validation.
	EventInvalidAnswer SecurityEventType = "invalid_answer"
)

// SecurityEvent is one auditable event.
type SecurityEvent struct {
	Timestamp    time.Time         `json:"timestamp"`
	EventType    SecurityEventType `json:"event_type"`
	ChatID       string            `json:"chat_id,omitempty"`
	InvocationID uuid.UUID         `json:"invocation_id"`
	DataSource   string            `json:"data_source,omitempty"`
	Details      any               `json:"details"`
	Severity     string            `json:"severity"` // info, warning, critical
}

// InjectionDetails describes a flagged value.
type InjectionDetails struct {
	Field       string `json:"field"`
	Value       string `json:"value"`
	Fingerprint string `json:"fingerprint"`
}

// SecurityAuditor logs security events under the "security_audit" logger.
type SecurityAuditor struct {
	logger *zap.Logger
}

func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogInjectionAttempt records a value libinjection flagged. Logged at ERROR
// with critical severity.
func (a *SecurityAuditor) LogInjectionAttempt(chatID string, invocationID uuid.UUID, dataSource string, hit *sqlcheck.InjectionCheckResult) {
	details := InjectionDetails{
		Field:       hit.Field,
		Value:       hit.Value,
		Fingerprint: hit.Fingerprint,
	}
	event := a.event(EventSQLInjectionAttempt, chatID, invocationID, dataSource, details, "critical")

	a.logger.Error("SQL injection attempt detected",
		zap.String("event_json", event),
		zap.String("chat_id", chatID),
		zap.String("invocation_id", invocationID.String()),
		zap.String("data_source", dataSource),
		zap.String("field", hit.Field),
		zap.String("fingerprint", hit.Fingerprint),
		zap.String("severity", "critical"),
	)
}

// LogInvalidAnswer records rejected tool arguments. These are usually model
// mistakes, so the event is a warning.
func (a *SecurityAuditor) LogInvalidAnswer(chatID string, invocationID uuid.UUID, message string) {
	event := a.event(EventInvalidAnswer, chatID, invocationID, "", map[string]string{"error": message}, "warning")

	a.logger.Warn("Invalid answer rejected",
		zap.String("event_json", event),
		zap.String("chat_id", chatID),
		zap.String("invocation_id", invocationID.String()),
		zap.String("error", message),
		zap.String("severity", "warning"),
	)
}

func (a *SecurityAuditor) event(eventType SecurityEventType, chatID string, invocationID uuid.UUID, dataSource string, details any, severity string) string {
	// Marshaling these known types cannot fail.
	raw, _ := json.Marshal(SecurityEvent{
		Timestamp:    time.Now().UTC(),
		EventType:    eventType,
		ChatID:       chatID,
		InvocationID: invocationID,
		DataSource:   dataSource,
		Details:      details,
		Severity:     severity,
	})
	return string(raw)
}
