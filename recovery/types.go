// Package recovery validates stored sync state, repairs it, and provides
// checksummed backup/restore. It mutates persisted state through narrow
// store interfaces supplied by the orchestrator and never performs network
// I/O. Destructive operations require an explicit opt-in from the caller;
// the core implies no cross-collection locking, so the orchestrator must
// serialize destructive recovery against in-flight syncs itself.
package recovery

import "time"

// IssueType categorizes an integrity problem found by validation.
type IssueType string

const (
	IssueOrphanedRecord       IssueType = "orphanedRecord"
	IssueInconsistentMetadata IssueType = "inconsistentMetadata"
	IssueCorruptedData        IssueType = "corruptedData"
	IssueDuplicateRecord      IssueType = "duplicateRecord"
	IssueVersionMismatch      IssueType = "versionMismatch"
	IssueSystem               IssueType = "systemIssue"
)

// Severity ranks integrity issues.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RecoveryStrategy is one suggested fix for an integrity issue. Strategies
// flagged Destructive can lose data and are skipped by autoRecover unless
// destructive operations are explicitly allowed.
type RecoveryStrategy struct {
	Name                 string
	Description          string
	Destructive          bool
	RequiresConfirmation bool
}

// IntegrityIssue is one problem found by ValidateSyncIntegrity.
type IntegrityIssue struct {
	ID            string
	Type          IssueType
	Severity      Severity
	Description   string
	EntityType    string
	SuggestedFixes []RecoveryStrategy
}

// BackupMetadata describes one persisted backup. It is immutable once
// created and referenced by RestoreFromBackup.
type BackupMetadata struct {
	ID                  string            `json:"id"`
	CreatedAt           time.Time         `json:"createdAt"`
	Description         string            `json:"description"`
	IncludedCollections []string          `json:"includedCollections"`
	TotalItems          int               `json:"totalItems"`
	Checksum            string            `json:"checksum"`
	SystemInfo          map[string]string `json:"systemInfo,omitempty"`
}

// OperationType names a recovery operation for results and metrics.
type OperationType string

const (
	OpValidate    OperationType = "validateSyncIntegrity"
	OpBackup      OperationType = "createBackup"
	OpRestore     OperationType = "restoreFromBackup"
	OpResetState  OperationType = "resetSyncState"
	OpDedupe      OperationType = "resolveDuplicates"
	OpRepair      OperationType = "repairCorruptedData"
	OpResync      OperationType = "forceCompleteResync"
	OpAutoRecover OperationType = "autoRecover"
)

// OperationResult is the uniform return shape of every recovery call.
// AffectedItems is always the exact mutation count: a failure that touched
// nothing reports 0, a partial failure reports what was actually written.
type OperationResult struct {
	Operation     OperationType
	Success       bool
	Message       string
	Duration      time.Duration
	AffectedItems int
	Warnings      []string
	Errors        []string
}

// DuplicateStrategy names how duplicate entities are collapsed.
type DuplicateStrategy string

const (
	KeepNewest DuplicateStrategy = "keepNewest"
	KeepOldest DuplicateStrategy = "keepOldest"
	KeepFirst  DuplicateStrategy = "keepFirst"
)

// RestoreOptions controls RestoreFromBackup.
type RestoreOptions struct {
	// Collections restricts the restore; empty means every collection the
	// backup includes.
	Collections []string

	// VerifyIntegrity recomputes the payload checksum before any mutation
	// and hard-fails the whole restore on mismatch.
	VerifyIntegrity bool

	// CreatePreRestoreBackup snapshots the affected collections first.
	CreatePreRestoreBackup bool
}

// DefaultRestoreOptions enables both safety mechanisms.
func DefaultRestoreOptions() RestoreOptions {
	return RestoreOptions{VerifyIntegrity: true, CreatePreRestoreBackup: true}
}

// ResetOptions controls ResetSyncState. Only sync metadata is mutated;
// records are never deleted.
type ResetOptions struct {
	Collections     []string
	ResetVersions   bool
	ClearDirtyFlags bool
	ResetTimestamps bool
}

// RepairOptions controls RepairCorruptedData.
type RepairOptions struct {
	Collections           []string
	ValidateFields        bool
	FixMissingAuditFields bool
}

// ResyncOptions controls ForceCompleteResync.
type ResyncOptions struct {
	Collections    []string
	ClearLocalData bool
}

// AutoRecoverOptions controls AutoRecover.
type AutoRecoverOptions struct {
	Collections                  []string
	IncludeDestructiveOperations bool
}
