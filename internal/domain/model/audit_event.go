package model

import "time"

// AuditOutcome classifies the result of an audited action.
type AuditOutcome string

const (
	OutcomeSuccess        AuditOutcome = "success"
	OutcomeDenied         AuditOutcome = "denied"
	OutcomeInvalid        AuditOutcome = "invalid"
	OutcomeFailed         AuditOutcome = "failed"
	OutcomeNoDestinations AuditOutcome = "no_destinations"
)

// Audit actions recorded by the scheduler. Router actions use the command keyword.
const (
	ActionBroadcastSend  = "broadcast_send"
	ActionBroadcastCycle = "broadcast_cycle"
)

// AuditEvent is an append-only record of one administrative command or one
// broadcast delivery. Events are never mutated after they are appended.
type AuditEvent struct {
	ID        string
	Timestamp time.Time
	ActorID   int64
	Action    string
	Target    string
	Outcome   AuditOutcome
	Detail    string
}
