// Package conflict implements detection and resolution of disagreements
// between local and remote copies of the same entity. Detection and
// resolution are pure functions over supplied snapshots; strategies are
// selected through a lookup table so new ones can be added without touching
// the dispatcher.
package conflict

import (
	"time"

	synccore "github.com/c0deZ3R0/go-sync-core"
)

// ConflictType classifies a single field disagreement.
type ConflictType string

const (
	// ValueDifference means the field is present on both sides with unequal values.
	ValueDifference ConflictType = "valueDifference"

	// LocalOnly means the field exists only in the local snapshot.
	LocalOnly ConflictType = "localOnly"

	// RemoteOnly means the field exists only in the remote snapshot.
	RemoteOnly ConflictType = "remoteOnly"

	// SemanticConflict means the disagreement implies more than a literal
	// value mismatch (e.g. a status regression).
	SemanticConflict ConflictType = "semanticConflict"

	// ReferenceConflict means the field looks like a foreign-key style
	// reference whose targets disagree.
	ReferenceConflict ConflictType = "referenceConflict"
)

// Strategy names a policy for turning a conflict into a resolved record.
type Strategy string

const (
	StrategyLocalWins        Strategy = "localWins"
	StrategyRemoteWins       Strategy = "remoteWins"
	StrategyNewestWins       Strategy = "newestWins"
	StrategyTimestampWins    Strategy = "timestampWins" // alias of newestWins
	StrategyOldestWins       Strategy = "oldestWins"
	StrategyIntelligentMerge Strategy = "intelligentMerge"
	StrategyManual           Strategy = "manual"
	StrategyCustom           Strategy = "custom"
	StrategyMergeOrPrompt    Strategy = "mergeOrPrompt"
)

// FieldConflict describes one field-level disagreement. It is owned
// exclusively by the Conflict that contains it.
type FieldConflict struct {
	FieldName           string
	Type                ConflictType
	LocalValue          any
	RemoteValue         any
	ConfidenceScore     float64 // [0,1]; 1 when semantic analysis is disabled
	PossibleResolutions []Strategy
}

// Conflict is a detected, version-driven disagreement between local and
// remote copies of one entity. Invariant: FieldConflicts is non-empty; a
// Conflict is never constructed when the versions agree.
type Conflict struct {
	EntityID       string
	Collection     string
	LocalData      synccore.Record
	RemoteData     synccore.Record
	FieldConflicts map[string]FieldConflict
	DetectedAt     time.Time
	LocalVersion   int64
	RemoteVersion  int64

	// RequiresManualIntervention is set by semantic analysis when any field
	// is semantic/reference-classified or scores below the confidence floor.
	RequiresManualIntervention bool
}

// Fields returns the conflicting field names in no particular order.
func (c *Conflict) Fields() []string {
	out := make([]string, 0, len(c.FieldConflicts))
	for name := range c.FieldConflicts {
		out = append(out, name)
	}
	return out
}

// Resolution is the immutable outcome of one Resolve call.
type Resolution struct {
	// ResolvedData is the full record to apply. When
	// RequiresUserIntervention is true it is a placeholder only and must
	// never be auto-committed by the caller.
	ResolvedData synccore.Record

	// Strategy that produced the resolution.
	Strategy Strategy

	// FieldsUsedFromLocal and FieldsUsedFromRemote partition the conflicting
	// fields: the sets are disjoint and together cover every conflict.
	FieldsUsedFromLocal  []string
	FieldsUsedFromRemote []string

	// FieldsRequiringManualReview lists fields a human must decide.
	FieldsRequiringManualReview []string

	// RequiresUserIntervention marks the resolution as pending an external
	// decision.
	RequiresUserIntervention bool

	// AuditTrail records how each field was decided, for telemetry.
	AuditTrail []string

	ResolvedAt time.Time
}
