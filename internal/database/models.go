package database

import "github.com/tpmb/tpmb2/internal/domain/model"

// Timestamps are stored as unix milliseconds.

type groupRow struct {
	ID      int64 `db:"id"`
	AddedAt int64 `db:"added_at"`
}

func (r groupRow) toModel() model.Group {
	return model.Group{ID: r.ID, AddedAt: fromMillis(r.AddedAt)}
}

type settingRow struct {
	Name      string `db:"name"`
	Value     []byte `db:"value"`
	UpdatedAt int64  `db:"updated_at"`
}

type auditRow struct {
	ID        string `db:"id"`
	Timestamp int64  `db:"timestamp"`
	ActorID   int64  `db:"actor_id"`
	Action    string `db:"action"`
	Target    string `db:"target"`
	Outcome   string `db:"outcome"`
	Detail    string `db:"detail"`
}

func newAuditRow(ev model.AuditEvent) auditRow {
	return auditRow{
		ID:        ev.ID,
		Timestamp: toMillis(ev.Timestamp),
		ActorID:   ev.ActorID,
		Action:    ev.Action,
		Target:    ev.Target,
		Outcome:   string(ev.Outcome),
		Detail:    ev.Detail,
	}
}

func (r auditRow) toModel() model.AuditEvent {
	return model.AuditEvent{
		ID:        r.ID,
		Timestamp: fromMillis(r.Timestamp),
		ActorID:   r.ActorID,
		Action:    r.Action,
		Target:    r.Target,
		Outcome:   model.AuditOutcome(r.Outcome),
		Detail:    r.Detail,
	}
}
