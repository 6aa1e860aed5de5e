package conflict

import (
	"strings"
	"time"

	synccore "github.com/c0deZ3R0/go-sync-core"
)

// Classifier overrides the default field classification. It receives a
// field already known to disagree and returns its type and a confidence
// score in [0,1].
type Classifier func(field string, local, remote any) (ConflictType, float64)

// detectorOptions holds construction-time options.
type detectorOptions struct {
	auditFields       map[string]struct{}
	semantic          bool
	referenceSuffixes []string
	semanticFields    []string
	confidenceFloor   float64
	classifier        Classifier
}

// DetectorOption configures a Detector at construction time.
type DetectorOption interface{ apply(*detectorOptions) }

type detectorOptionFn func(*detectorOptions)

func (f detectorOptionFn) apply(o *detectorOptions) { f(o) }

// WithAuditFields replaces the default conflict-ineligible field set.
func WithAuditFields(fields ...string) DetectorOption {
	return detectorOptionFn(func(o *detectorOptions) {
		o.auditFields = make(map[string]struct{}, len(fields))
		for _, f := range fields {
			o.auditFields[f] = struct{}{}
		}
	})
}

// WithSemanticAnalysis enables the enhanced variant: confidence scoring and
// semantic/reference classification of disagreeing fields.
func WithSemanticAnalysis() DetectorOption {
	return detectorOptionFn(func(o *detectorOptions) { o.semantic = true })
}

// WithReferenceSuffixes sets the field-name suffixes treated as foreign-key
// style references (default "Id", "ID", "Ref").
func WithReferenceSuffixes(suffixes ...string) DetectorOption {
	return detectorOptionFn(func(o *detectorOptions) { o.referenceSuffixes = suffixes })
}

// WithSemanticFields sets field names whose disagreement is classified as
// semantic rather than a literal value mismatch (default "status", "state").
func WithSemanticFields(fields ...string) DetectorOption {
	return detectorOptionFn(func(o *detectorOptions) { o.semanticFields = fields })
}

// WithConfidenceFloor sets the score below which a conflict requires manual
// intervention (default 0.5).
func WithConfidenceFloor(floor float64) DetectorOption {
	return detectorOptionFn(func(o *detectorOptions) { o.confidenceFloor = floor })
}

// WithClassifier installs a custom classifier consulted before the built-in
// heuristics.
func WithClassifier(c Classifier) DetectorOption {
	return detectorOptionFn(func(o *detectorOptions) { o.classifier = c })
}

// Detector diffs local and remote snapshots of one entity and classifies
// per-field disagreements. It holds no mutable state and is safe for
// concurrent use.
type Detector struct {
	opts detectorOptions
}

// NewDetector constructs a Detector. With no options it performs the basic
// variant: valueDifference/localOnly/remoteOnly classification with full
// confidence.
func NewDetector(opts ...DetectorOption) *Detector {
	cfg := detectorOptions{
		auditFields:       synccore.AuditFields,
		referenceSuffixes: []string{"Id", "ID", "Ref"},
		semanticFields:    []string{"status", "state"},
		confidenceFloor:   0.5,
	}
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	return &Detector{opts: cfg}
}

// Detect compares a local and remote snapshot of one entity. It returns nil
// when the versions agree (regardless of field content) and when no
// conflict-eligible field disagrees.
func (d *Detector) Detect(entityID, collection string, local, remote synccore.Record, localVersion, remoteVersion int64) *Conflict {
	if localVersion == remoteVersion {
		return nil
	}

	fieldConflicts := make(map[string]FieldConflict)
	for _, field := range unionFields(local, remote) {
		if _, skip := d.opts.auditFields[field]; skip {
			continue
		}

		localValue, inLocal := local[field]
		remoteValue, inRemote := remote[field]

		var fc FieldConflict
		switch {
		case inLocal && inRemote:
			if synccore.ValuesEqual(localValue, remoteValue) {
				continue
			}
			fc = FieldConflict{
				FieldName:       field,
				Type:            ValueDifference,
				LocalValue:      localValue,
				RemoteValue:     remoteValue,
				ConfidenceScore: 1.0,
			}
		case inLocal:
			fc = FieldConflict{
				FieldName:       field,
				Type:            LocalOnly,
				LocalValue:      localValue,
				ConfidenceScore: 1.0,
			}
		default:
			fc = FieldConflict{
				FieldName:       field,
				Type:            RemoteOnly,
				RemoteValue:     remoteValue,
				ConfidenceScore: 1.0,
			}
		}

		if d.opts.semantic {
			d.classify(&fc)
		}
		fc.PossibleResolutions = possibleResolutions(fc.Type)
		fieldConflicts[field] = fc
	}

	if len(fieldConflicts) == 0 {
		return nil
	}

	c := &Conflict{
		EntityID:       entityID,
		Collection:     collection,
		LocalData:      synccore.CloneRecord(local),
		RemoteData:     synccore.CloneRecord(remote),
		FieldConflicts: fieldConflicts,
		DetectedAt:     time.Now().UTC(),
		LocalVersion:   localVersion,
		RemoteVersion:  remoteVersion,
	}

	if d.opts.semantic {
		for _, fc := range fieldConflicts {
			if fc.Type == SemanticConflict || fc.Type == ReferenceConflict || fc.ConfidenceScore < d.opts.confidenceFloor {
				c.RequiresManualIntervention = true
				break
			}
		}
	}

	return c
}

// classify upgrades a field conflict's type and confidence using the custom
// classifier when present, else built-in name heuristics.
func (d *Detector) classify(fc *FieldConflict) {
	if d.opts.classifier != nil {
		fc.Type, fc.ConfidenceScore = d.opts.classifier(fc.FieldName, fc.LocalValue, fc.RemoteValue)
		return
	}

	if fc.Type != ValueDifference {
		// Presence mismatches keep their classification but are less certain
		// than a literal two-sided difference.
		fc.ConfidenceScore = 0.8
		return
	}

	for _, suffix := range d.opts.referenceSuffixes {
		if strings.HasSuffix(fc.FieldName, suffix) && fc.FieldName != suffix {
			fc.Type = ReferenceConflict
			fc.ConfidenceScore = 0.4
			return
		}
	}
	for _, name := range d.opts.semanticFields {
		if strings.EqualFold(fc.FieldName, name) {
			fc.Type = SemanticConflict
			fc.ConfidenceScore = 0.6
			return
		}
	}
	fc.ConfidenceScore = 0.9
}

func possibleResolutions(t ConflictType) []Strategy {
	switch t {
	case SemanticConflict, ReferenceConflict:
		return []Strategy{StrategyManual, StrategyLocalWins, StrategyRemoteWins}
	case LocalOnly:
		return []Strategy{StrategyIntelligentMerge, StrategyLocalWins, StrategyRemoteWins}
	case RemoteOnly:
		return []Strategy{StrategyIntelligentMerge, StrategyRemoteWins, StrategyLocalWins}
	default:
		return []Strategy{StrategyNewestWins, StrategyIntelligentMerge, StrategyLocalWins, StrategyRemoteWins, StrategyManual}
	}
}

// unionFields returns the union of field names from both snapshots in a
// deterministic order.
func unionFields(local, remote synccore.Record) []string {
	seen := make(map[string]struct{}, len(local)+len(remote))
	out := make([]string, 0, len(local)+len(remote))
	for name := range local {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	for name := range remote {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}
