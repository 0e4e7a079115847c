package tasks

import (
	"context"
	"fmt"

	errs "github.com/tpmb/tpmb2/internal/errors"
)

func newBroadcastTickTask(deps TaskDeps) ScheduledTaskFunc {
	return func(ctx context.Context) error {
		if err := deps.Core.Tick(ctx); err != nil {
			return fmt.Errorf("broadcast tick failed: %w", err)
		}
		return nil
	}
}

func newSessionSweepTask(deps TaskDeps) ScheduledTaskFunc {
	return func(ctx context.Context) error {
		if err := deps.Core.SweepSessions(ctx); err != nil {
			return fmt.Errorf("session sweep failed: %w", err)
		}
		return nil
	}
}

// newTimeSyncTask never fails the job on a sync failure; the time source
// already falls back to the local clock and logs the degradation.
func newTimeSyncTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", TimeSync)

	return func(ctx context.Context) error {
		err := deps.Core.SyncTime(ctx)
		switch {
		case err == nil:
			return nil
		case errs.IsTimeSource(err):
			log.WarnContext(ctx, "Network time sync failed, using local clock", "error", err)
			return nil
		default:
			return fmt.Errorf("time sync failed: %w", err)
		}
	}
}
