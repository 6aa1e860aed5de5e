package conflict

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	syncErrors "github.com/c0deZ3R0/go-sync-core/errors"
)

// MergePolicy drives the intelligentMerge strategy. The prefer-local
// heuristic is deliberately configuration, not behavior baked into the
// resolver: which field names count as "user preference" is an application
// assumption.
type MergePolicy struct {
	// FieldStrategies binds individual fields to a side-picking strategy
	// (localWins, remoteWins, newestWins, oldestWins). Fields without an
	// entry fall through to the pattern heuristic.
	FieldStrategies map[string]Strategy `json:"field_strategies" yaml:"field_strategies"`

	// PreferLocalPatterns lists case-insensitive substrings; a conflicting
	// field whose name contains one is resolved from the local side.
	PreferLocalPatterns []string `json:"prefer_local_patterns" yaml:"prefer_local_patterns"`
}

// DefaultMergePolicy prefers local values for preference-like fields and
// binds nothing else.
func DefaultMergePolicy() *MergePolicy {
	return &MergePolicy{
		PreferLocalPatterns: []string{"preference", "setting", "config", "theme", "notification"},
	}
}

// Validate rejects field strategies that cannot pick a side per field.
func (p *MergePolicy) Validate() error {
	for field, s := range p.FieldStrategies {
		switch s {
		case StrategyLocalWins, StrategyRemoteWins, StrategyNewestWins, StrategyTimestampWins, StrategyOldestWins:
		default:
			return syncErrors.NewValidationError(syncErrors.OpConfigure,
				fmt.Errorf("field %q: strategy %q cannot be applied per field", field, s))
		}
	}
	return nil
}

// prefersLocal reports whether the heuristic routes field to the local side.
func (p *MergePolicy) prefersLocal(field string) bool {
	lower := strings.ToLower(field)
	for _, pattern := range p.PreferLocalPatterns {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// LoadMergePolicy reads a policy from a YAML or JSON file, selected by
// extension.
func LoadMergePolicy(path string) (*MergePolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, syncErrors.NewWithComponent(syncErrors.OpConfigure, "conflict", err)
	}

	policy := &MergePolicy{}
	if strings.HasSuffix(path, ".json") {
		err = json.Unmarshal(data, policy)
	} else {
		err = yaml.Unmarshal(data, policy)
	}
	if err != nil {
		return nil, syncErrors.NewValidationError(syncErrors.OpConfigure,
			fmt.Errorf("parse merge policy %s: %w", path, err))
	}

	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return policy, nil
}
