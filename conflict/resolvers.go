package conflict

import (
	"context"
	"fmt"
	"sort"
	"time"

	synccore "github.com/c0deZ3R0/go-sync-core"
	syncErrors "github.com/c0deZ3R0/go-sync-core/errors"
)

// Resolver is the strategy interface for conflict resolution.
type Resolver interface {
	// Resolve turns a conflict into a resolution. It is a pure function of
	// the conflict; side effects (publishing, persistence) belong to the
	// Manager and the orchestrator.
	Resolve(ctx context.Context, c *Conflict) (*Resolution, error)

	// CanResolve reports whether this resolver can handle the conflict.
	// A declining resolver causes the Manager to fall back to its default.
	CanResolve(c *Conflict) bool

	// Name returns the strategy name.
	Name() string
}

var (
	_ Resolver = (*LocalWinsResolver)(nil)
	_ Resolver = (*RemoteWinsResolver)(nil)
	_ Resolver = (*NewestWinsResolver)(nil)
	_ Resolver = (*OldestWinsResolver)(nil)
	_ Resolver = (*IntelligentMergeResolver)(nil)
	_ Resolver = (*ManualResolver)(nil)
	_ Resolver = (*CustomResolver)(nil)
	_ Resolver = (*MergeOrPromptResolver)(nil)
)

// ResolverFor returns a resolver for the named strategy, or false when the
// strategy is unknown. Strategies map to resolver values through this table
// rather than a branch ladder so new strategies slot in without touching
// callers.
func ResolverFor(s Strategy) (Resolver, bool) {
	switch s {
	case StrategyLocalWins:
		return &LocalWinsResolver{}, true
	case StrategyRemoteWins:
		return &RemoteWinsResolver{}, true
	case StrategyNewestWins, StrategyTimestampWins:
		return &NewestWinsResolver{}, true
	case StrategyOldestWins:
		return &OldestWinsResolver{}, true
	case StrategyIntelligentMerge:
		return NewIntelligentMergeResolver(nil), true
	case StrategyManual:
		return &ManualResolver{}, true
	case StrategyCustom:
		return &CustomResolver{}, true
	case StrategyMergeOrPrompt:
		return &MergeOrPromptResolver{}, true
	default:
		return nil, false
	}
}

// sideResolution builds a whole-side resolution: the winner contributes the
// entire record, the loser contributes nothing.
func sideResolution(c *Conflict, strategy Strategy, useLocal bool, reason string) *Resolution {
	fields := sortedFields(c)
	res := &Resolution{
		Strategy:   strategy,
		ResolvedAt: time.Now().UTC(),
	}
	if useLocal {
		res.ResolvedData = synccore.CloneRecord(c.LocalData)
		res.FieldsUsedFromLocal = fields
	} else {
		res.ResolvedData = synccore.CloneRecord(c.RemoteData)
		res.FieldsUsedFromRemote = fields
	}
	side := "remote"
	if useLocal {
		side = "local"
	}
	res.AuditTrail = append(res.AuditTrail, fmt.Sprintf("%s record applied wholesale: %s", side, reason))
	return res
}

// LocalWinsResolver keeps the local record unchanged.
type LocalWinsResolver struct{}

func (r *LocalWinsResolver) Name() string               { return string(StrategyLocalWins) }
func (r *LocalWinsResolver) CanResolve(c *Conflict) bool { return true }

func (r *LocalWinsResolver) Resolve(ctx context.Context, c *Conflict) (*Resolution, error) {
	return sideResolution(c, StrategyLocalWins, true, "localWins strategy"), nil
}

// RemoteWinsResolver applies the remote record unchanged.
type RemoteWinsResolver struct{}

func (r *RemoteWinsResolver) Name() string               { return string(StrategyRemoteWins) }
func (r *RemoteWinsResolver) CanResolve(c *Conflict) bool { return true }

func (r *RemoteWinsResolver) Resolve(ctx context.Context, c *Conflict) (*Resolution, error) {
	return sideResolution(c, StrategyRemoteWins, false, "remoteWins strategy"), nil
}

// NewestWinsResolver prefers the side with the later updatedAt timestamp,
// falling back to version numbers when either side lacks a timestamp.
type NewestWinsResolver struct{}

func (r *NewestWinsResolver) Name() string               { return string(StrategyNewestWins) }
func (r *NewestWinsResolver) CanResolve(c *Conflict) bool { return true }

func (r *NewestWinsResolver) Resolve(ctx context.Context, c *Conflict) (*Resolution, error) {
	useLocal, reason := newerSideIsLocal(c)
	return sideResolution(c, StrategyNewestWins, useLocal, reason), nil
}

// OldestWinsResolver is the symmetric strategy: earlier timestamp or lower
// version wins.
type OldestWinsResolver struct{}

func (r *OldestWinsResolver) Name() string               { return string(StrategyOldestWins) }
func (r *OldestWinsResolver) CanResolve(c *Conflict) bool { return true }

func (r *OldestWinsResolver) Resolve(ctx context.Context, c *Conflict) (*Resolution, error) {
	newerIsLocal, reason := newerSideIsLocal(c)
	return sideResolution(c, StrategyOldestWins, !newerIsLocal, "inverted: "+reason), nil
}

// newerSideIsLocal decides which side is more recent. Ties prefer remote,
// matching last-write-wins semantics where the server copy is authoritative.
func newerSideIsLocal(c *Conflict) (bool, string) {
	localTime, okLocal := synccore.RecordTime(c.LocalData, "updatedAt")
	remoteTime, okRemote := synccore.RecordTime(c.RemoteData, "updatedAt")

	if okLocal && okRemote {
		if localTime.After(remoteTime) {
			return true, "local updatedAt is later"
		}
		return false, "remote updatedAt is later or equal"
	}

	// Either timestamp absent: fall back to version numbers.
	if c.LocalVersion > c.RemoteVersion {
		return true, "local version is higher"
	}
	return false, "remote version is higher or equal"
}

// ManualResolver produces a placeholder resolution that must never be
// auto-committed: every conflicting field is routed to manual review.
type ManualResolver struct{}

func (r *ManualResolver) Name() string               { return string(StrategyManual) }
func (r *ManualResolver) CanResolve(c *Conflict) bool { return true }

func (r *ManualResolver) Resolve(ctx context.Context, c *Conflict) (*Resolution, error) {
	fields := sortedFields(c)
	return &Resolution{
		ResolvedData:                synccore.CloneRecord(c.LocalData),
		Strategy:                    StrategyManual,
		FieldsRequiringManualReview: fields,
		RequiresUserIntervention:    true,
		AuditTrail:                  []string{fmt.Sprintf("%d field(s) deferred to manual review", len(fields))},
		ResolvedAt:                  time.Now().UTC(),
	}, nil
}

// CustomResolver delegates to an externally supplied merge function. With no
// function configured it behaves as intelligentMerge.
type CustomResolver struct {
	// Merge produces the resolved record. The returned record is applied
	// wholesale; fields matching the local snapshot are attributed to local.
	Merge func(ctx context.Context, c *Conflict) (synccore.Record, error)
}

func (r *CustomResolver) Name() string               { return string(StrategyCustom) }
func (r *CustomResolver) CanResolve(c *Conflict) bool { return true }

func (r *CustomResolver) Resolve(ctx context.Context, c *Conflict) (*Resolution, error) {
	if r.Merge == nil {
		res, err := NewIntelligentMergeResolver(nil).Resolve(ctx, c)
		if err != nil {
			return nil, err
		}
		res.Strategy = StrategyCustom
		res.AuditTrail = append(res.AuditTrail, "no custom merge function configured, used intelligentMerge")
		return res, nil
	}

	merged, err := r.Merge(ctx, c)
	if err != nil {
		return nil, syncErrors.NewConflictError(syncErrors.OpResolve, err)
	}

	res := &Resolution{
		ResolvedData: synccore.CloneRecord(merged),
		Strategy:     StrategyCustom,
		ResolvedAt:   time.Now().UTC(),
	}
	for _, field := range sortedFields(c) {
		fc := c.FieldConflicts[field]
		if synccore.ValuesEqual(merged[field], fc.LocalValue) {
			res.FieldsUsedFromLocal = append(res.FieldsUsedFromLocal, field)
		} else {
			res.FieldsUsedFromRemote = append(res.FieldsUsedFromRemote, field)
		}
	}
	res.AuditTrail = append(res.AuditTrail, "custom merge function applied")
	return res, nil
}

// MergeOrPromptResolver attempts an intelligent merge and falls back to
// manual resolution when the merge fails. The built-in merge never fails;
// the fallback exists for policy-driven merges that can decline.
type MergeOrPromptResolver struct {
	// Policy overrides the default merge policy.
	Policy *MergePolicy
}

func (r *MergeOrPromptResolver) Name() string               { return string(StrategyMergeOrPrompt) }
func (r *MergeOrPromptResolver) CanResolve(c *Conflict) bool { return true }

func (r *MergeOrPromptResolver) Resolve(ctx context.Context, c *Conflict) (*Resolution, error) {
	res, err := NewIntelligentMergeResolver(r.Policy).Resolve(ctx, c)
	if err == nil {
		res.Strategy = StrategyMergeOrPrompt
		return res, nil
	}

	manual, merr := (&ManualResolver{}).Resolve(ctx, c)
	if merr != nil {
		return nil, merr
	}
	manual.Strategy = StrategyMergeOrPrompt
	manual.AuditTrail = append(manual.AuditTrail, fmt.Sprintf("intelligent merge failed (%v), prompting", err))
	return manual, nil
}

func sortedFields(c *Conflict) []string {
	fields := c.Fields()
	sort.Strings(fields)
	return fields
}
