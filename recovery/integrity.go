package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	synccore "github.com/c0deZ3R0/go-sync-core"
	syncErrors "github.com/c0deZ3R0/go-sync-core/errors"
)

// ValidateSyncIntegrity scans the requested collections (all when none are
// given) and reports every integrity issue found. Validation never mutates
// state; the returned result's AffectedItems counts the issues.
func (s *Service) ValidateSyncIntegrity(ctx context.Context, collections ...string) ([]IntegrityIssue, OperationResult) {
	start := time.Now()

	names, err := s.resolveCollections(ctx, collections)
	if err != nil {
		return nil, s.fail(OpValidate, start, err, "listing collections failed")
	}

	var issues []IntegrityIssue
	for _, name := range names {
		records, err := s.store.GetCollectionData(ctx, name)
		if err != nil {
			issues = append(issues, IntegrityIssue{
				ID:          uuid.NewString(),
				Type:        IssueSystem,
				Severity:    SeverityCritical,
				Description: fmt.Sprintf("collection %q is unreadable: %v", name, err),
				EntityType:  name,
				SuggestedFixes: []RecoveryStrategy{{
					Name:        "forceCompleteResync",
					Description: "reset sync state and pull the collection from the remote",
					Destructive: true, RequiresConfirmation: true,
				}},
			})
			continue
		}
		issues = append(issues, s.validateCollection(name, records)...)
	}

	if _, err := s.backups.ListBackups(ctx); err != nil {
		issues = append(issues, IntegrityIssue{
			ID:          uuid.NewString(),
			Type:        IssueSystem,
			Severity:    SeverityMedium,
			Description: fmt.Sprintf("backup store is unreadable: %v", err),
			EntityType:  "backups",
			SuggestedFixes: []RecoveryStrategy{{
				Name:        "inspectBackupStore",
				Description: "verify the backup store's connectivity and schema",
			}},
		})
	}

	byType := make(map[IssueType]int)
	for _, issue := range issues {
		byType[issue.Type]++
	}
	for issueType, count := range byType {
		s.metrics.RecordIntegrityIssues(string(issueType), count)
	}

	return issues, s.finish(OperationResult{
		Operation:     OpValidate,
		Success:       true,
		Message:       fmt.Sprintf("validated %d collection(s), %d issue(s) found", len(names), len(issues)),
		AffectedItems: len(issues),
	}, start)
}

// validateCollection runs the per-record checks over one collection.
func (s *Service) validateCollection(name string, records []synccore.Record) []IntegrityIssue {
	var issues []IntegrityIssue
	seen := make(map[string]int)

	for i, record := range records {
		id, hasID := synccore.RecordString(record, "id")
		if !hasID || id == "" {
			issues = append(issues, IntegrityIssue{
				ID:          uuid.NewString(),
				Type:        IssueOrphanedRecord,
				Severity:    SeverityHigh,
				Description: fmt.Sprintf("record at index %d in %q has no id", i, name),
				EntityType:  name,
				SuggestedFixes: []RecoveryStrategy{{
					Name:        "removeOrphanedRecords",
					Description: "drop records that cannot be addressed by id",
					Destructive: true, RequiresConfirmation: true,
				}},
			})
			continue
		}

		seen[id]++
		if seen[id] == 2 {
			issues = append(issues, IntegrityIssue{
				ID:          uuid.NewString(),
				Type:        IssueDuplicateRecord,
				Severity:    SeverityHigh,
				Description: fmt.Sprintf("entity %q appears more than once in %q", id, name),
				EntityType:  name,
				SuggestedFixes: []RecoveryStrategy{{
					Name:        "resolveDuplicates",
					Description: "collapse duplicates keeping the newest copy",
					Destructive: true, RequiresConfirmation: true,
				}},
			})
		}

		if _, err := json.Marshal(record); err != nil {
			issues = append(issues, IntegrityIssue{
				ID:          uuid.NewString(),
				Type:        IssueCorruptedData,
				Severity:    SeverityCritical,
				Description: fmt.Sprintf("entity %q in %q is not serializable: %v", id, name, err),
				EntityType:  name,
				SuggestedFixes: []RecoveryStrategy{{
					Name:        "repairCorruptedData",
					Description: "drop unserializable fields and rebuild audit metadata",
					RequiresConfirmation: true,
				}},
			})
		}

		if raw, present := record["syncVersion"]; present && raw != nil {
			if _, ok := synccore.RecordInt64(record, "syncVersion"); !ok {
				issues = append(issues, IntegrityIssue{
					ID:          uuid.NewString(),
					Type:        IssueVersionMismatch,
					Severity:    SeverityMedium,
					Description: fmt.Sprintf("entity %q in %q has a non-numeric syncVersion (%T)", id, name, raw),
					EntityType:  name,
					SuggestedFixes: []RecoveryStrategy{{
						Name:        "resetSyncState",
						Description: "reset syncVersion to zero so the next cycle re-establishes it",
					}},
				})
			}
		}

		if _, synced := record["lastSyncedAt"]; synced {
			if _, versioned := record["syncVersion"]; !versioned {
				issues = append(issues, IntegrityIssue{
					ID:          uuid.NewString(),
					Type:        IssueInconsistentMetadata,
					Severity:    SeverityLow,
					Description: fmt.Sprintf("entity %q in %q has lastSyncedAt without syncVersion", id, name),
					EntityType:  name,
					SuggestedFixes: []RecoveryStrategy{{
						Name:        "resetSyncState",
						Description: "clear sync timestamps so metadata is rebuilt consistently",
					}},
				})
			}
		}
	}

	return issues
}

// ResetSyncState clears sync metadata on every record of the requested
// collections. Entity data is never touched: only syncVersion, dirty flags,
// and lastSyncedAt are affected, and only where the corresponding option is
// set. AffectedItems counts records actually changed.
func (s *Service) ResetSyncState(ctx context.Context, opts ResetOptions) OperationResult {
	start := time.Now()

	names, err := s.resolveCollections(ctx, opts.Collections)
	if err != nil {
		return s.fail(OpResetState, start, err, "listing collections failed")
	}

	changed := 0
	for _, name := range names {
		records, err := s.store.GetCollectionData(ctx, name)
		if err != nil {
			return s.fail(OpResetState, start, syncErrors.NewStorageError(syncErrors.OpReset, err),
				fmt.Sprintf("reading collection %q failed", name))
		}

		collectionChanged := false
		updated := make([]synccore.Record, 0, len(records))
		for _, record := range records {
			next := synccore.CloneRecord(record)
			recordChanged := false

			if opts.ResetVersions {
				if v, ok := next["syncVersion"]; !ok || !synccore.ValuesEqual(v, int64(0)) {
					next["syncVersion"] = int64(0)
					recordChanged = true
				}
			}
			if opts.ClearDirtyFlags {
				for _, flag := range []string{"dirty", "isDirty"} {
					if _, ok := next[flag]; ok {
						delete(next, flag)
						recordChanged = true
					}
				}
			}
			if opts.ResetTimestamps {
				if _, ok := next["lastSyncedAt"]; ok {
					delete(next, "lastSyncedAt")
					recordChanged = true
				}
			}

			if recordChanged {
				changed++
				collectionChanged = true
			}
			updated = append(updated, next)
		}

		if collectionChanged {
			if _, err := s.store.ReplaceCollectionData(ctx, name, updated); err != nil {
				return s.fail(OpResetState, start, syncErrors.NewStorageError(syncErrors.OpReset, err),
					fmt.Sprintf("writing collection %q failed", name))
			}
		}
	}

	return s.finish(OperationResult{
		Operation:     OpResetState,
		Success:       true,
		Message:       fmt.Sprintf("sync metadata reset on %d record(s) across %d collection(s)", changed, len(names)),
		AffectedItems: changed,
	}, start)
}

// ResolveDuplicates collapses records sharing an id down to one survivor
// per entity, chosen by strategy. AffectedItems counts removed duplicates.
func (s *Service) ResolveDuplicates(ctx context.Context, strategy DuplicateStrategy, collections ...string) OperationResult {
	start := time.Now()

	switch strategy {
	case KeepNewest, KeepOldest, KeepFirst:
	default:
		return s.fail(OpDedupe, start,
			syncErrors.NewValidationError(syncErrors.OpDedupe, fmt.Errorf("unknown duplicate strategy %q", strategy)),
			"invalid duplicate strategy")
	}

	names, err := s.resolveCollections(ctx, collections)
	if err != nil {
		return s.fail(OpDedupe, start, err, "listing collections failed")
	}

	removed := 0
	for _, name := range names {
		records, err := s.store.GetCollectionData(ctx, name)
		if err != nil {
			return s.fail(OpDedupe, start, syncErrors.NewStorageError(syncErrors.OpDedupe, err),
				fmt.Sprintf("reading collection %q failed", name))
		}

		survivors, dropped := collapseDuplicates(records, strategy)
		if dropped == 0 {
			continue
		}
		if _, err := s.store.ReplaceCollectionData(ctx, name, survivors); err != nil {
			return s.fail(OpDedupe, start, syncErrors.NewStorageError(syncErrors.OpDedupe, err),
				fmt.Sprintf("writing collection %q failed", name))
		}
		removed += dropped
	}

	return s.finish(OperationResult{
		Operation:     OpDedupe,
		Success:       true,
		Message:       fmt.Sprintf("removed %d duplicate record(s) using %s", removed, strategy),
		AffectedItems: removed,
	}, start)
}

// collapseDuplicates keeps one record per id, preserving first-seen order of
// entities. Records without an id pass through untouched; they are the
// orphan check's concern, not deduplication's.
func collapseDuplicates(records []synccore.Record, strategy DuplicateStrategy) ([]synccore.Record, int) {
	survivors := make([]synccore.Record, 0, len(records))
	index := make(map[string]int)
	dropped := 0

	for _, record := range records {
		id, ok := synccore.RecordString(record, "id")
		if !ok || id == "" {
			survivors = append(survivors, record)
			continue
		}

		pos, seen := index[id]
		if !seen {
			index[id] = len(survivors)
			survivors = append(survivors, record)
			continue
		}

		dropped++
		if strategy == KeepFirst {
			continue
		}
		current := survivors[pos]
		currentTime, _ := synccore.RecordTime(current, "updatedAt")
		candidateTime, hasTime := synccore.RecordTime(record, "updatedAt")
		if !hasTime {
			continue
		}
		switch strategy {
		case KeepNewest:
			if candidateTime.After(currentTime) {
				survivors[pos] = record
			}
		case KeepOldest:
			if currentTime.IsZero() || candidateTime.Before(currentTime) {
				survivors[pos] = record
			}
		}
	}

	return survivors, dropped
}

// RepairCorruptedData fixes what it can in place: unserializable fields are
// dropped, and missing audit metadata is synthesized when
// FixMissingAuditFields is set. AffectedItems counts repaired records.
func (s *Service) RepairCorruptedData(ctx context.Context, opts RepairOptions) OperationResult {
	start := time.Now()

	names, err := s.resolveCollections(ctx, opts.Collections)
	if err != nil {
		return s.fail(OpRepair, start, err, "listing collections failed")
	}

	repaired := 0
	var warnings []string
	now := time.Now().UTC().Format(time.RFC3339)

	for _, name := range names {
		records, err := s.store.GetCollectionData(ctx, name)
		if err != nil {
			return s.fail(OpRepair, start, syncErrors.NewStorageError(syncErrors.OpRepair, err),
				fmt.Sprintf("reading collection %q failed", name))
		}

		collectionChanged := false
		updated := make([]synccore.Record, 0, len(records))
		for _, record := range records {
			next := synccore.CloneRecord(record)
			recordChanged := false

			if opts.ValidateFields {
				for field, value := range next {
					if _, err := json.Marshal(value); err != nil {
						delete(next, field)
						recordChanged = true
						warnings = append(warnings,
							fmt.Sprintf("dropped unserializable field %q from a record in %q", field, name))
					}
				}
			}

			if opts.FixMissingAuditFields {
				if _, ok := next["createdAt"]; !ok {
					next["createdAt"] = now
					recordChanged = true
				}
				if _, ok := next["updatedAt"]; !ok {
					next["updatedAt"] = now
					recordChanged = true
				}
				if _, ok := next["syncVersion"]; !ok {
					next["syncVersion"] = int64(0)
					recordChanged = true
				}
			}

			if recordChanged {
				repaired++
				collectionChanged = true
			}
			updated = append(updated, next)
		}

		if collectionChanged {
			if _, err := s.store.ReplaceCollectionData(ctx, name, updated); err != nil {
				return s.fail(OpRepair, start, syncErrors.NewStorageError(syncErrors.OpRepair, err),
					fmt.Sprintf("writing collection %q failed", name))
			}
		}
	}

	return s.finish(OperationResult{
		Operation:     OpRepair,
		Success:       true,
		Message:       fmt.Sprintf("repaired %d record(s) across %d collection(s)", repaired, len(names)),
		AffectedItems: repaired,
		Warnings:      warnings,
	}, start)
}
