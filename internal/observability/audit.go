package observability

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AuditEvent is one entry in the audit trail. Metadata carries identifiers
// only; patient data never goes into the audit log.
type AuditEvent struct {
	Type      string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	Actor     string                 `json:"actor,omitempty"`
	Action    string                 `json:"action"`
	Status    string                 `json:"status"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
}

// AuditLogger writes audit events as JSON lines.
type AuditLogger struct {
	logger zerolog.Logger
	mu     sync.Mutex
	file   *os.File
}

var (
	auditMu   sync.Mutex
	auditInst *AuditLogger
)

// GetAuditLogger returns the process audit logger, writing to stderr until
// InitAuditLogger is called.
func GetAuditLogger() *AuditLogger {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditInst == nil {
		auditInst = &AuditLogger{
			logger: zerolog.New(os.Stderr).With().Timestamp().Logger(),
		}
	}
	return auditInst
}

// InitAuditLogger redirects the audit trail to path.
func InitAuditLogger(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}

	auditMu.Lock()
	defer auditMu.Unlock()
	auditInst = &AuditLogger{
		logger: zerolog.New(file).With().Timestamp().Logger(),
		file:   file,
	}
	return nil
}

// NewAuditLogger builds an audit logger on an arbitrary zerolog logger.
func NewAuditLogger(logger zerolog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// Record emits an audit event and mirrors it on the active span.
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		event.TraceID = span.SpanContext().TraceID().String()
		span.AddEvent(event.Action, trace.WithAttributes(
			attribute.String("audit.type", event.Type),
			attribute.String("audit.status", event.Status),
			attribute.String("audit.actor", event.Actor),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Str("type", event.Type).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("status", event.Status).
		Str("trace_id", event.TraceID)

	if event.Metadata != nil {
		entry.Interface("metadata", event.Metadata)
	}

	entry.Msg("")
}

// Close closes the audit file, if any.
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		return a.file.Close()
	}
	return nil
}

// RecordRecordAccess audits a read or write of a stored patient document.
func RecordRecordAccess(ctx context.Context, action, documentID, status string) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     "record",
		Actor:    actorFromContext(ctx),
		Action:   action,
		Status:   status,
		Metadata: map[string]interface{}{"document_id": documentID},
	})
}

// RecordEmailAudit audits an outbound email. Only the recipient is kept.
func RecordEmailAudit(ctx context.Context, recipient, status string) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     "email",
		Actor:    actorFromContext(ctx),
		Action:   "send",
		Status:   status,
		Metadata: map[string]interface{}{"to": recipient},
	})
}

// RecordSecurityAudit audits authentication outcomes at the gateway.
func RecordSecurityAudit(ctx context.Context, action, actor, status string, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     "security",
		Actor:    actor,
		Action:   action,
		Status:   status,
		Metadata: metadata,
	})
}

type actorKey struct{}

// WithActor tags ctx with the client or session that triggered the work.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if actor, ok := ctx.Value(actorKey{}).(string); ok {
		return actor
	}
	return ""
}
