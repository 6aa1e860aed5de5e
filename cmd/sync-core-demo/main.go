package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	synccore "github.com/c0deZ3R0/go-sync-core"
	"github.com/c0deZ3R0/go-sync-core/conflict"
	"github.com/c0deZ3R0/go-sync-core/logging"
	"github.com/c0deZ3R0/go-sync-core/recovery"
	"github.com/c0deZ3R0/go-sync-core/scheduler"
	"github.com/c0deZ3R0/go-sync-core/storage/memory"
)

func main() {
	// Initialize structured logging from environment
	config := logging.GetConfigFromEnv()
	logging.Init(config)

	ctx := context.Background()

	logging.Info("sync core demo starting",
		slog.String("environment", config.Environment),
		slog.Time("start_time", time.Now()),
	)

	// --- Conflict detection and resolution ---

	manager := conflict.NewManager()
	defer manager.Close()

	unsubscribe := manager.OnConflictResolved(func(r *conflict.Resolution) {
		logging.Info("conflict resolved",
			slog.String("strategy", string(r.Strategy)),
			slog.Int("fields_from_local", len(r.FieldsUsedFromLocal)),
			slog.Int("fields_from_remote", len(r.FieldsUsedFromRemote)),
		)
	})
	defer unsubscribe()

	local := synccore.Record{
		"id":        "task-1",
		"title":     "Write quarterly report",
		"status":    "in_progress",
		"themePreference": "dark",
		"updatedAt": time.Now().Add(-2 * time.Minute).Format(time.RFC3339),
	}
	remote := synccore.Record{
		"id":        "task-1",
		"title":     "Write quarterly report (final)",
		"status":    "done",
		"themePreference": "light",
		"updatedAt": time.Now().Format(time.RFC3339),
	}

	detected := manager.DetectConflict("task-1", "tasks", local, remote, 3, 4)
	if detected != nil {
		logging.Info("conflict detected",
			slog.String("entity", detected.EntityID),
			slog.Int("field_conflicts", len(detected.FieldConflicts)),
			slog.Bool("manual_intervention", detected.RequiresManualIntervention),
		)

		if _, err := manager.ResolveConflict(ctx, detected); err != nil {
			logging.LogError(ctx, err, "resolution failed")
		}
	}

	// --- Adaptive scheduling ---

	schedCfg := scheduler.DefaultConfig()
	schedCfg.Mode = scheduler.ModeAutomatic
	schedCfg.SyncInterval = 2 * time.Second

	sched, err := scheduler.New(schedCfg)
	if err != nil {
		logging.LogError(ctx, err, "scheduler construction failed")
		os.Exit(1)
	}
	defer sched.Close()

	stopTriggers := sched.OnTrigger(func(t scheduler.Trigger) {
		logging.Info("sync trigger fired",
			slog.String("type", string(t.Type)),
			slog.String("collection", t.Collection),
		)
		// A real orchestrator would run the sync here and report the outcome.
		sched.NotifySyncSuccess(t.Collection)
	})
	defer stopTriggers()

	if err := sched.Start("tasks", "notes"); err != nil {
		logging.LogError(ctx, err, "scheduler start failed")
		os.Exit(1)
	}
	if err := sched.TriggerManualSync("tasks"); err != nil {
		logging.LogError(ctx, err, "manual sync failed")
	}

	// --- Recovery and integrity ---

	store := memory.New()
	store.Seed("tasks", []synccore.Record{
		local,
		{"id": "task-2", "title": "Plan offsite", "syncVersion": int64(1)},
		{"id": "task-2", "title": "Plan offsite (copy)", "syncVersion": int64(1)},
	})

	svc := recovery.NewService(store, store, recovery.WithSyncTriggerer(sched))
	defer svc.Close()

	issues, _ := svc.ValidateSyncIntegrity(ctx)
	logging.Info("integrity validated", slog.Int("issues", len(issues)))

	meta, backupResult := svc.CreateBackup(ctx, "demo backup")
	if backupResult.Success {
		logging.Info("backup created",
			slog.String("id", meta.ID),
			slog.String("checksum", meta.Checksum),
			slog.Int("items", meta.TotalItems),
		)

		restore := svc.RestoreFromBackup(ctx, meta.ID, recovery.DefaultRestoreOptions())
		logging.Info("restore finished",
			slog.Bool("success", restore.Success),
			slog.Int("affected_items", restore.AffectedItems),
		)
	}

	dedupe := svc.ResolveDuplicates(ctx, recovery.KeepNewest, "tasks")
	logging.Info("duplicates resolved", slog.Int("removed", dedupe.AffectedItems))

	// Let a couple of interval triggers fire before shutting down.
	time.Sleep(5 * time.Second)

	logging.Info("sync core demo complete")
}
