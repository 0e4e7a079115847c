package tasks

import "context"

// ScheduledTaskFunc is the signature of every scheduled task. The context is
// cancelled on shutdown.
type ScheduledTaskFunc func(ctx context.Context) error

// Task names, matching the keys of the scheduler.tasks configuration section.
const (
	BroadcastTick  = "broadcast_tick"
	SessionSweep   = "session_sweep"
	TimeSync       = "time_sync"
	SQLMaintenance = "sql_maintenance"
)

// RegisterAllTasks returns every task keyed by name.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := map[string]ScheduledTaskFunc{
		BroadcastTick:  newBroadcastTickTask(deps),
		SessionSweep:   newSessionSweepTask(deps),
		TimeSync:       newTimeSyncTask(deps),
		SQLMaintenance: newSQLMaintenanceTask(deps),
	}
	deps.Logger.Debug("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
