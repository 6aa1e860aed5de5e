package conflict

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	synccore "github.com/c0deZ3R0/go-sync-core"
	syncErrors "github.com/c0deZ3R0/go-sync-core/errors"
	"github.com/c0deZ3R0/go-sync-core/logging"
	"github.com/c0deZ3R0/go-sync-core/pubsub"
)

// Manager ties detection and resolution together: it holds a default
// resolver, optional per-collection overrides, and the multicast channels
// observers subscribe to. Resolution falls back to the default resolver
// when a registered override declines a conflict.
type Manager struct {
	mu              sync.RWMutex
	detector        *Detector
	defaultResolver Resolver
	overrides       map[string]Resolver

	detected *pubsub.Bus[*Conflict]
	resolved *pubsub.Bus[*Resolution]

	logger  *logging.Logger
	metrics MetricsCollector
}

// ManagerOption configures a Manager at construction time.
type ManagerOption interface{ apply(*Manager) }

type managerOptionFn func(*Manager)

func (f managerOptionFn) apply(m *Manager) { f(m) }

// WithDetector replaces the default basic detector.
func WithDetector(d *Detector) ManagerOption {
	return managerOptionFn(func(m *Manager) { m.detector = d })
}

// WithDefaultResolver replaces the default resolver (newestWins).
func WithDefaultResolver(r Resolver) ManagerOption {
	return managerOptionFn(func(m *Manager) { m.defaultResolver = r })
}

// WithManagerLogger sets the logger.
func WithManagerLogger(l *logging.Logger) ManagerOption {
	return managerOptionFn(func(m *Manager) { m.logger = l })
}

// WithManagerMetrics sets the metrics collector.
func WithManagerMetrics(mc MetricsCollector) ManagerOption {
	return managerOptionFn(func(m *Manager) { m.metrics = mc })
}

// NewManager constructs a Manager with a basic detector and newestWins as
// the default strategy.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		detector:        NewDetector(),
		defaultResolver: &NewestWinsResolver{},
		overrides:       make(map[string]Resolver),
		detected:        pubsub.NewBus[*Conflict](),
		resolved:        pubsub.NewBus[*Resolution](),
		logger:          logging.Default().WithComponent(logging.Component("conflict")),
		metrics:         &NoOpMetricsCollector{},
	}
	for _, opt := range opts {
		opt.apply(m)
	}
	return m
}

// SetCollectionStrategy registers a per-collection strategy override by name.
func (m *Manager) SetCollectionStrategy(collection string, s Strategy) error {
	resolver, ok := ResolverFor(s)
	if !ok {
		return syncErrors.NewValidationError(syncErrors.OpConfigure,
			fmt.Errorf("unknown strategy %q for collection %q", s, collection))
	}
	return m.SetCollectionResolver(collection, resolver)
}

// SetCollectionResolver registers a per-collection resolver override.
func (m *Manager) SetCollectionResolver(collection string, r Resolver) error {
	if r == nil {
		return syncErrors.NewValidationError(syncErrors.OpConfigure,
			fmt.Errorf("nil resolver for collection %q", collection))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[collection] = r
	return nil
}

// RemoveCollectionResolver drops a per-collection override.
func (m *Manager) RemoveCollectionResolver(collection string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides, collection)
}

// DetectConflict diffs the two snapshots and, when they disagree, publishes
// the conflict on the conflict-detected channel. Returns nil when the
// versions agree or no conflict-eligible field differs.
func (m *Manager) DetectConflict(entityID, collection string, local, remote synccore.Record, localVersion, remoteVersion int64) *Conflict {
	c := m.detector.Detect(entityID, collection, local, remote, localVersion, remoteVersion)
	if c == nil {
		return nil
	}

	m.logger.Debug("conflict detected",
		slog.String("collection", collection),
		slog.String("entity_id", entityID),
		slog.Int("fields", len(c.FieldConflicts)),
		slog.Int64("local_version", localVersion),
		slog.Int64("remote_version", remoteVersion),
	)
	m.metrics.RecordConflictDetected(collection, len(c.FieldConflicts))
	m.detected.Publish(c)
	return c
}

// ResolveConflict resolves c with the collection's registered resolver,
// falling back to the default resolver when the override declines. The
// resolution is published on the conflict-resolved channel.
func (m *Manager) ResolveConflict(ctx context.Context, c *Conflict) (*Resolution, error) {
	if c == nil || len(c.FieldConflicts) == 0 {
		return nil, syncErrors.NewValidationError(syncErrors.OpResolve,
			fmt.Errorf("conflict with no field conflicts"))
	}

	resolver := m.resolverFor(c)
	start := time.Now()

	res, err := resolver.Resolve(ctx, c)
	if err != nil {
		m.metrics.RecordResolution(resolver.Name(), time.Since(start), false)
		m.logger.LogError(ctx, err, "conflict resolution failed",
			slog.String("collection", c.Collection),
			slog.String("entity_id", c.EntityID),
			slog.String("strategy", resolver.Name()),
		)
		return nil, syncErrors.WrapOpComponent(err, syncErrors.OpResolve, "conflict")
	}

	m.metrics.RecordResolution(resolver.Name(), time.Since(start), true)
	if res.RequiresUserIntervention {
		m.metrics.RecordManualReview(c.Collection)
	}

	m.logger.Info("conflict resolved",
		slog.String("collection", c.Collection),
		slog.String("entity_id", c.EntityID),
		slog.String("strategy", string(res.Strategy)),
		slog.Int("fields_from_local", len(res.FieldsUsedFromLocal)),
		slog.Int("fields_from_remote", len(res.FieldsUsedFromRemote)),
		slog.Bool("requires_user_intervention", res.RequiresUserIntervention),
	)
	m.resolved.Publish(res)
	return res, nil
}

// resolverFor picks the override for the conflict's collection if it exists
// and accepts the conflict, else the default resolver.
func (m *Manager) resolverFor(c *Conflict) Resolver {
	m.mu.RLock()
	override, ok := m.overrides[c.Collection]
	def := m.defaultResolver
	m.mu.RUnlock()

	if ok && override.CanResolve(c) {
		return override
	}
	return def
}

// OnConflictDetected subscribes to the conflict-detected channel and returns
// an unsubscribe function. Delivery is fire-and-forget with no replay.
func (m *Manager) OnConflictDetected(handler func(*Conflict)) func() {
	return m.detected.Subscribe(handler)
}

// OnConflictResolved subscribes to the conflict-resolved channel.
func (m *Manager) OnConflictResolved(handler func(*Resolution)) func() {
	return m.resolved.Subscribe(handler)
}

// Close shuts down the notification channels.
func (m *Manager) Close() {
	m.detected.Close()
	m.resolved.Close()
}
