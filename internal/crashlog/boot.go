package crashlog

import (
	"context"
	"runtime"
	"time"

	"go.uber.org/zap"
)

const ReasonUnexpectedReset = "unexpected reset"

// InspectBoot runs once at startup. If the previous run never set the
// clean-shutdown marker, it records an entry for the lost session, then
// clears the marker for the current run and logs the stored history.
func InspectBoot(ctx context.Context, store *Store, logger *zap.Logger) error {
	clean, err := store.WasCleanShutdown(ctx)
	if err != nil {
		return err
	}
	if !clean {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		entry := Entry{
			Timestamp:   time.Now().UTC(),
			Reason:      ReasonUnexpectedReset,
			FreeHeap:    mem.HeapIdle,
			MinFreeHeap: mem.HeapIdle,
		}
		if err := store.Record(ctx, entry); err != nil {
			return err
		}
		logger.Warn("previous run ended without a clean shutdown")
	}

	if err := store.MarkDirty(ctx); err != nil {
		return err
	}

	entries, err := store.List(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		logger.Info("crash history",
			zap.Time("recorded_at", e.Timestamp),
			zap.Duration("uptime", e.Uptime),
			zap.String("reason", e.Reason),
			zap.Uint64("free_heap", e.FreeHeap),
			zap.Uint64("min_free_heap", e.MinFreeHeap))
	}
	return nil
}
