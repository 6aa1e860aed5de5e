package recovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"

	synccore "github.com/c0deZ3R0/go-sync-core"
	syncErrors "github.com/c0deZ3R0/go-sync-core/errors"
	"github.com/c0deZ3R0/go-sync-core/logging"
	"github.com/c0deZ3R0/go-sync-core/pubsub"
)

// Service implements the recovery and integrity operations. Every call
// returns an OperationResult and publishes it on the result channel.
type Service struct {
	store   CollectionStore
	backups BackupStore
	trigger SyncTriggerer

	results *pubsub.Bus[OperationResult]
	logger  *logging.Logger
	metrics MetricsCollector
}

// ServiceOption configures a Service at construction time.
type ServiceOption interface{ apply(*Service) }

type serviceOptionFn func(*Service)

func (f serviceOptionFn) apply(s *Service) { f(s) }

// WithSyncTriggerer lets ForceCompleteResync kick off sync cycles.
func WithSyncTriggerer(t SyncTriggerer) ServiceOption {
	return serviceOptionFn(func(s *Service) { s.trigger = t })
}

// WithServiceLogger sets the logger.
func WithServiceLogger(l *logging.Logger) ServiceOption {
	return serviceOptionFn(func(s *Service) { s.logger = l })
}

// WithServiceMetrics sets the metrics collector.
func WithServiceMetrics(m MetricsCollector) ServiceOption {
	return serviceOptionFn(func(s *Service) { s.metrics = m })
}

// NewService constructs a recovery service over the given stores.
func NewService(store CollectionStore, backups BackupStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		backups: backups,
		results: pubsub.NewBus[OperationResult](),
		logger:  logging.Default().WithComponent(logging.Component("recovery")),
		metrics: &NoOpMetricsCollector{},
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	return s
}

// OnResult subscribes to the result channel and returns an unsubscribe
// function.
func (s *Service) OnResult(handler func(OperationResult)) func() {
	return s.results.Subscribe(handler)
}

// Close shuts down the result channel.
func (s *Service) Close() {
	s.results.Close()
}

// backupPayload is the serialized snapshot a checksum covers.
type backupPayload struct {
	Collections map[string][]synccore.Record `json:"collections"`
	SystemInfo  map[string]string            `json:"systemInfo,omitempty"`
}

// CreateBackup snapshots the requested collections (all when none are
// given), computes a content checksum over the serialized snapshot, and
// persists payload and metadata together.
func (s *Service) CreateBackup(ctx context.Context, description string, collections ...string) (*BackupMetadata, OperationResult) {
	start := time.Now()

	names, err := s.resolveCollections(ctx, collections)
	if err != nil {
		return nil, s.fail(OpBackup, start, err, "listing collections failed")
	}

	payload := backupPayload{
		Collections: make(map[string][]synccore.Record, len(names)),
		SystemInfo:  systemInfo(),
	}
	total := 0
	for _, name := range names {
		records, err := s.store.GetCollectionData(ctx, name)
		if err != nil {
			return nil, s.fail(OpBackup, start, syncErrors.NewStorageError(syncErrors.OpBackup, err),
				fmt.Sprintf("reading collection %q failed", name))
		}
		payload.Collections[name] = records
		total += len(records)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, s.fail(OpBackup, start, err, "serializing backup payload failed")
	}

	meta := BackupMetadata{
		ID:                  uuid.NewString(),
		CreatedAt:           time.Now().UTC(),
		Description:         description,
		IncludedCollections: names,
		TotalItems:          total,
		Checksum:            checksum(data),
		SystemInfo:          payload.SystemInfo,
	}

	if err := s.backups.StoreBackup(ctx, meta, data); err != nil {
		return nil, s.fail(OpBackup, start, syncErrors.NewStorageError(syncErrors.OpBackup, err),
			"persisting backup failed")
	}

	return &meta, s.finish(OperationResult{
		Operation:     OpBackup,
		Success:       true,
		Message:       fmt.Sprintf("backup %s created with %d item(s) across %d collection(s)", meta.ID, total, len(names)),
		AffectedItems: total,
	}, start)
}

// RestoreFromBackup replaces the requested collections' data from a stored
// backup. With VerifyIntegrity set, a checksum mismatch hard-fails the
// entire restore before any mutation: success=false, affectedItems=0, all
// collections untouched.
func (s *Service) RestoreFromBackup(ctx context.Context, backupID string, opts RestoreOptions) OperationResult {
	start := time.Now()

	meta, data, err := s.backups.LoadBackup(ctx, backupID)
	if err != nil {
		return s.fail(OpRestore, start, syncErrors.NewStorageError(syncErrors.OpRestore, err),
			fmt.Sprintf("loading backup %q failed", backupID))
	}

	if opts.VerifyIntegrity {
		if got := checksum(data); got != meta.Checksum {
			err := syncErrors.NewIntegrityError(syncErrors.OpRestore,
				fmt.Errorf("checksum mismatch for backup %s: stored %s, computed %s", backupID, meta.Checksum, got))
			return s.fail(OpRestore, start, err, "backup payload failed integrity verification, nothing restored")
		}
	}

	var payload backupPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return s.fail(OpRestore, start, syncErrors.NewIntegrityError(syncErrors.OpRestore, err),
			"backup payload is not decodable, nothing restored")
	}

	targets := opts.Collections
	if len(targets) == 0 {
		targets = meta.IncludedCollections
	}

	// Everything that can fail without mutating state has passed; take the
	// safety snapshot before touching data.
	result := OperationResult{Operation: OpRestore}
	if opts.CreatePreRestoreBackup {
		pre, preResult := s.CreateBackup(ctx, fmt.Sprintf("pre-restore safety backup (restoring %s)", backupID), targets...)
		if !preResult.Success {
			return s.fail(OpRestore, start, fmt.Errorf("pre-restore backup failed: %s", preResult.Message),
				"aborted before mutation")
		}
		result.Warnings = append(result.Warnings, fmt.Sprintf("pre-restore backup created: %s", pre.ID))
	}

	restored := 0
	for _, name := range targets {
		records, ok := payload.Collections[name]
		if !ok {
			result.Warnings = append(result.Warnings, fmt.Sprintf("collection %q not present in backup, skipped", name))
			continue
		}
		count, err := s.store.ReplaceCollectionData(ctx, name, records)
		if err != nil {
			result.Success = false
			result.AffectedItems = restored
			result.Errors = append(result.Errors, fmt.Sprintf("restoring collection %q: %v", name, err))
			result.Message = fmt.Sprintf("restore failed after %d item(s)", restored)
			return s.finish(result, start)
		}
		restored += count
	}

	result.Success = true
	result.AffectedItems = restored
	result.Message = fmt.Sprintf("restored %d item(s) from backup %s", restored, backupID)
	return s.finish(result, start)
}

// ForceCompleteResync resets all sync metadata, optionally clears local
// data, and triggers a full sync cycle per collection. This is the
// last-resort recovery path.
func (s *Service) ForceCompleteResync(ctx context.Context, opts ResyncOptions) OperationResult {
	start := time.Now()

	names, err := s.resolveCollections(ctx, opts.Collections)
	if err != nil {
		return s.fail(OpResync, start, err, "listing collections failed")
	}

	result := OperationResult{Operation: OpResync}

	reset := s.ResetSyncState(ctx, ResetOptions{
		Collections:     names,
		ResetVersions:   true,
		ClearDirtyFlags: true,
		ResetTimestamps: true,
	})
	if !reset.Success {
		return s.fail(OpResync, start, fmt.Errorf("reset failed: %s", reset.Message), "resync aborted")
	}
	result.AffectedItems = reset.AffectedItems

	if opts.ClearLocalData {
		for _, name := range names {
			if err := s.store.ClearCollectionData(ctx, name); err != nil {
				result.Success = false
				result.Errors = append(result.Errors, fmt.Sprintf("clearing collection %q: %v", name, err))
				result.Message = "resync failed while clearing local data"
				return s.finish(result, start)
			}
		}
		result.Warnings = append(result.Warnings, fmt.Sprintf("local data cleared for %d collection(s)", len(names)))
	}

	if s.trigger != nil {
		for _, name := range names {
			if err := s.trigger.TriggerManualSync(name); err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("triggering sync for %q: %v", name, err))
			}
		}
	} else {
		result.Warnings = append(result.Warnings, "no sync trigger configured, full sync must be started externally")
	}

	result.Success = true
	result.Message = fmt.Sprintf("sync state reset for %d collection(s), full resync triggered", len(names))
	return s.finish(result, start)
}

// AutoRecover validates the requested collections and, when issues exist,
// takes a safety backup and dispatches targeted repairs by issue category.
// Destructive repairs are skipped unless explicitly allowed.
func (s *Service) AutoRecover(ctx context.Context, opts AutoRecoverOptions) OperationResult {
	start := time.Now()

	issues, validateResult := s.ValidateSyncIntegrity(ctx, opts.Collections...)
	if !validateResult.Success {
		return s.fail(OpAutoRecover, start, fmt.Errorf("validation failed: %s", validateResult.Message),
			"auto-recover aborted")
	}
	if len(issues) == 0 {
		return s.finish(OperationResult{
			Operation: OpAutoRecover,
			Success:   true,
			Message:   "no integrity issues found",
		}, start)
	}

	result := OperationResult{Operation: OpAutoRecover}

	if _, backupResult := s.CreateBackup(ctx, "auto-recover safety backup", opts.Collections...); !backupResult.Success {
		return s.fail(OpAutoRecover, start, fmt.Errorf("safety backup failed: %s", backupResult.Message),
			"auto-recover aborted before any repair")
	}

	categories := make(map[IssueType]int)
	for _, issue := range issues {
		categories[issue.Type]++
	}

	if categories[IssueCorruptedData] > 0 || categories[IssueOrphanedRecord] > 0 {
		repair := s.RepairCorruptedData(ctx, RepairOptions{
			Collections:           opts.Collections,
			ValidateFields:        true,
			FixMissingAuditFields: true,
		})
		result.AffectedItems += repair.AffectedItems
		result.Warnings = append(result.Warnings, repair.Warnings...)
		if !repair.Success {
			result.Errors = append(result.Errors, repair.Errors...)
		}
	}

	if categories[IssueInconsistentMetadata] > 0 || categories[IssueVersionMismatch] > 0 {
		reset := s.ResetSyncState(ctx, ResetOptions{
			Collections:     opts.Collections,
			ResetVersions:   categories[IssueVersionMismatch] > 0,
			ResetTimestamps: categories[IssueInconsistentMetadata] > 0,
		})
		result.AffectedItems += reset.AffectedItems
		if !reset.Success {
			result.Errors = append(result.Errors, reset.Errors...)
		}
	}

	if categories[IssueDuplicateRecord] > 0 {
		if opts.IncludeDestructiveOperations {
			dedupe := s.ResolveDuplicates(ctx, KeepNewest, opts.Collections...)
			result.AffectedItems += dedupe.AffectedItems
			if !dedupe.Success {
				result.Errors = append(result.Errors, dedupe.Errors...)
			}
		} else {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%d duplicate-record issue(s) skipped: destructive operations not allowed", categories[IssueDuplicateRecord]))
		}
	}

	result.Success = len(result.Errors) == 0
	if result.Success {
		result.Message = fmt.Sprintf("auto-recover repaired %d item(s) across %d issue categorie(s)", result.AffectedItems, len(categories))
	} else {
		result.Message = "auto-recover completed with errors"
	}
	return s.finish(result, start)
}

// resolveCollections expands an empty request to every known collection.
func (s *Service) resolveCollections(ctx context.Context, requested []string) ([]string, error) {
	if len(requested) > 0 {
		return requested, nil
	}
	names, err := s.store.Collections(ctx)
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpLoad, err)
	}
	return names, nil
}

// finish stamps the duration, records metrics, logs, and publishes the
// result.
func (s *Service) finish(result OperationResult, start time.Time) OperationResult {
	result.Duration = time.Since(start)
	s.metrics.RecordOperation(string(result.Operation), result.Duration, result.Success, result.AffectedItems)

	s.logger.Info("recovery operation finished",
		slog.String("operation", string(result.Operation)),
		slog.Bool("success", result.Success),
		slog.Int("affected_items", result.AffectedItems),
		slog.Duration("duration", result.Duration),
		slog.Int("warnings", len(result.Warnings)),
		slog.Int("errors", len(result.Errors)),
	)
	s.results.Publish(result)
	return result
}

// fail builds the uniform failure result: success=false and an exact
// affected count of zero.
func (s *Service) fail(op OperationType, start time.Time, err error, msg string) OperationResult {
	s.logger.LogError(context.Background(), err, msg, slog.String("operation", string(op)))
	return s.finish(OperationResult{
		Operation: op,
		Message:   msg,
		Errors:    []string{err.Error()},
	}, start)
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func systemInfo() map[string]string {
	return map[string]string{
		"goVersion": runtime.Version(),
		"os":        runtime.GOOS,
		"arch":      runtime.GOARCH,
	}
}
