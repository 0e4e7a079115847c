// Package tasks implements the scheduled tasks that drive the bot: the
// broadcast tick, session eviction, network time sync and database upkeep.
package tasks

import (
	"context"
	"log/slog"
)

// Core is the part of the bot the tasks drive. Implementations serialize
// state changes themselves.
type Core interface {
	Tick(ctx context.Context) error
	SweepSessions(ctx context.Context) error
	SyncTime(ctx context.Context) error
}

// Maintainer runs database maintenance.
type Maintainer interface {
	RunSQLMaintenance(ctx context.Context) error
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Core   Core
	Store  Maintainer
}
