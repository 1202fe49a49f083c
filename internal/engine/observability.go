package engine

import (
	"context"
	"time"
)

// Logger receives structured engine events. The variadic arguments are
// alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MetricsRecorder aggregates operation timings and outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

// AuditStatus marks the outcome recorded in an audit entry.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditAction classifies what an operation did to its subject.
type AuditAction string

const (
	ActionCreate AuditAction = "create"
	ActionUpdate AuditAction = "update"
	ActionDelete AuditAction = "delete"
	ActionGrant  AuditAction = "grant"
	ActionExport AuditAction = "export"
)

// AuditEntry describes one completed service operation for an external audit
// sink. It is process-level telemetry, distinct from the changelog, which is
// the durable per-field record.
type AuditEntry struct {
	Operation string
	Action    AuditAction
	SubjectID int64
	ActorID   int64
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives audit entries. Implementations must not block.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

// auditActions maps operation names to their audit classification. Operations
// absent from the map emit no audit entries.
var auditActions = map[string]AuditAction{
	"create_entity":        ActionCreate,
	"create_template":      ActionCreate,
	"create_from_template": ActionCreate,
	"update_field":         ActionUpdate,
	"delete_entity":        ActionDelete,
	"ensure_acl":           ActionGrant,
	"set_acl_entry":        ActionGrant,
	"export_history":       ActionExport,
}

func (s *Service) recordAudit(ctx context.Context, op string, subjectID, actorID int64, start time.Time, err error) {
	action, ok := auditActions[op]
	if !ok {
		return
	}
	now := s.clock.Now()
	entry := AuditEntry{
		Operation: op,
		Action:    action,
		SubjectID: subjectID,
		ActorID:   actorID,
		Status:    AuditStatusSuccess,
		Duration:  now.Sub(start),
		Timestamp: now,
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// observe finishes one instrumented operation: metrics, audit, and a log line
// at debug on success or error on failure.
func (s *Service) observe(ctx context.Context, op string, subjectID, actorID int64, start time.Time, err error) {
	duration := s.clock.Now().Sub(start)
	s.metrics.Observe(ctx, op, err == nil, duration)
	s.recordAudit(ctx, op, subjectID, actorID, start, err)
	if err != nil {
		s.logger.Error(op+" failed", "subject", subjectID, "actor", actorID, "error", err)
		return
	}
	s.logger.Debug(op, "subject", subjectID, "actor", actorID, "duration", duration)
}
