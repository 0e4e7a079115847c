// Package audit records administrative commands and broadcast deliveries.
package audit

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/tpmb/tpmb2/internal/domain/model"
)

// Sink stores audit events.
type Sink interface {
	SaveAuditEvent(ctx context.Context, event model.AuditEvent) error
}

// Log is a fire-and-forget audit trail. Sink failures are logged and never
// returned to the caller.
type Log struct {
	sink   Sink
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewLog creates an audit log writing to sink. sink may be nil, in which
// case events are only logged.
func NewLog(sink Sink, clock clockwork.Clock, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Log{
		sink:   sink,
		clock:  clock,
		logger: logger.With("component", "audit"),
	}
}

// Append records event, filling in the id and timestamp when unset.
func (l *Log) Append(ctx context.Context, event model.AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.clock.Now()
	}

	level := slog.LevelInfo
	if event.Outcome != model.OutcomeSuccess && event.Outcome != model.OutcomeNoDestinations {
		level = slog.LevelWarn
	}
	l.logger.Log(ctx, level, "Audit event",
		"audit_id", event.ID,
		"actor_id", event.ActorID,
		"action", event.Action,
		"target", event.Target,
		"outcome", string(event.Outcome),
		"detail", event.Detail,
	)

	if l.sink == nil {
		return
	}
	if err := l.sink.SaveAuditEvent(ctx, event); err != nil {
		l.logger.ErrorContext(ctx, "Failed to persist audit event", "audit_id", event.ID, "error", err)
	}
}
