package conflict

import (
	"context"
	"fmt"
	"time"

	synccore "github.com/c0deZ3R0/go-sync-core"
)

// IntelligentMergeResolver merges field by field, starting from the remote
// record as the base. Each conflicting field is decided by the policy's
// field strategy when one is registered, else by the prefer-local pattern
// heuristic. Every conflicting field lands in exactly one of the
// local/remote attribution sets.
type IntelligentMergeResolver struct {
	policy *MergePolicy
}

// NewIntelligentMergeResolver builds a merge resolver; a nil policy uses
// DefaultMergePolicy.
func NewIntelligentMergeResolver(policy *MergePolicy) *IntelligentMergeResolver {
	if policy == nil {
		policy = DefaultMergePolicy()
	}
	return &IntelligentMergeResolver{policy: policy}
}

func (r *IntelligentMergeResolver) Name() string               { return string(StrategyIntelligentMerge) }
func (r *IntelligentMergeResolver) CanResolve(c *Conflict) bool { return true }

func (r *IntelligentMergeResolver) Resolve(ctx context.Context, c *Conflict) (*Resolution, error) {
	base := synccore.CloneRecord(c.RemoteData)
	res := &Resolution{
		Strategy:   StrategyIntelligentMerge,
		ResolvedAt: time.Now().UTC(),
	}

	for _, field := range sortedFields(c) {
		fc := c.FieldConflicts[field]
		useLocal, why := r.decide(c, fc)
		if useLocal {
			base[field] = fc.LocalValue
			res.FieldsUsedFromLocal = append(res.FieldsUsedFromLocal, field)
		} else {
			res.FieldsUsedFromRemote = append(res.FieldsUsedFromRemote, field)
		}
		side := "remote"
		if useLocal {
			side = "local"
		}
		res.AuditTrail = append(res.AuditTrail, fmt.Sprintf("%s: %s (%s)", field, side, why))
	}

	res.ResolvedData = base
	return res, nil
}

// decide picks the source side for one conflicting field.
func (r *IntelligentMergeResolver) decide(c *Conflict, fc FieldConflict) (useLocal bool, why string) {
	if s, ok := r.policy.FieldStrategies[fc.FieldName]; ok {
		switch s {
		case StrategyLocalWins:
			return true, "field strategy localWins"
		case StrategyRemoteWins:
			return false, "field strategy remoteWins"
		case StrategyNewestWins, StrategyTimestampWins:
			newerIsLocal, _ := newerSideIsLocal(c)
			return newerIsLocal, "field strategy newestWins"
		case StrategyOldestWins:
			newerIsLocal, _ := newerSideIsLocal(c)
			return !newerIsLocal, "field strategy oldestWins"
		}
	}

	if r.policy.prefersLocal(fc.FieldName) {
		return true, "prefer-local pattern"
	}

	// A field present only locally has no remote value to keep; merging is
	// additive for those.
	if fc.Type == LocalOnly {
		return true, "present only in local"
	}

	return false, "remote base"
}
