package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	syncErrors "github.com/c0deZ3R0/go-sync-core/errors"
	"github.com/c0deZ3R0/go-sync-core/logging"
	"github.com/c0deZ3R0/go-sync-core/pubsub"
)

// Status is the scheduler's global state.
type Status string

const (
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
)

// maxHistoryEntries bounds the per-collection sync-time history used by
// intelligent scheduling.
const maxHistoryEntries = 50

// collectionState is the per-collection mutable state owned by the
// scheduler: retry bookkeeping, success history, and the single active
// timer. Collections proceed fully independently.
type collectionState struct {
	retryCount  int
	exhausted   bool
	lastSuccess time.Time
	history     []time.Time
	timer       Timer
}

// StateSnapshot is a read-only view of one collection's scheduling state.
type StateSnapshot struct {
	RetryCount  int
	Exhausted   bool
	LastSuccess time.Time
	HistoryLen  int
	TimerArmed  bool
}

// Scheduler decides when sync attempts fire for each collection. It emits
// triggers on a multicast channel; the orchestrator performs the sync and
// must report the outcome back through NotifySyncSuccess or ScheduleRetry,
// otherwise scheduling state drifts.
type Scheduler struct {
	mu      sync.Mutex
	cfg     Config
	clock   Clock
	status  Status
	network NetworkCondition
	battery BatteryCondition
	states  map[string]*collectionState

	triggers      *pubsub.Bus[Trigger]
	configChanges *pubsub.Bus[Config]

	logger  *logging.Logger
	metrics MetricsCollector
}

// Option configures a Scheduler at construction time.
type Option interface{ apply(*Scheduler) }

type optionFn func(*Scheduler)

func (f optionFn) apply(s *Scheduler) { f(s) }

// WithClock replaces the system clock, primarily for tests.
func WithClock(c Clock) Option { return optionFn(func(s *Scheduler) { s.clock = c }) }

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option { return optionFn(func(s *Scheduler) { s.logger = l }) }

// WithMetrics sets the metrics collector.
func WithMetrics(m MetricsCollector) Option { return optionFn(func(s *Scheduler) { s.metrics = m }) }

// New constructs a stopped scheduler with the given configuration.
func New(cfg Config, opts ...Option) (*Scheduler, error) {
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Scheduler{
		cfg:           cfg,
		clock:         NewRealClock(),
		status:        StatusStopped,
		network:       NetworkWifi,
		battery:       BatteryNormal,
		states:        make(map[string]*collectionState),
		triggers:      pubsub.NewBus[Trigger](),
		configChanges: pubsub.NewBus[Config](),
		logger:        logging.Default().WithComponent(logging.Component("scheduler")),
		metrics:       &NoOpMetricsCollector{},
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	return s, nil
}

// Start begins scheduling for the given collections. Calling Start on a
// running scheduler registers any new collections.
func (s *Scheduler) Start(collections ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = StatusRunning
	for _, collection := range collections {
		if _, ok := s.states[collection]; !ok {
			s.states[collection] = &collectionState{}
		}
	}
	for collection := range s.states {
		s.scheduleNextLocked(collection)
	}

	s.logger.Info("scheduler started",
		slog.String("mode", string(s.cfg.Mode)),
		slog.Int("collections", len(s.states)),
	)
	return nil
}

// RegisterCollection adds a collection; scheduling starts immediately when
// the scheduler is running.
func (s *Scheduler) RegisterCollection(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[collection]; ok {
		return
	}
	s.states[collection] = &collectionState{}
	if s.status == StatusRunning {
		s.scheduleNextLocked(collection)
	}
}

// Pause cancels every pending timer immediately. Sync attempts already in
// flight are not aborted; that is the orchestrator's responsibility.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning {
		return
	}
	s.status = StatusPaused
	s.cancelAllTimersLocked()
	s.logger.Info("scheduler paused")
}

// Resume re-arms scheduling for every collection.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusPaused {
		return
	}
	s.status = StatusRunning
	for collection := range s.states {
		s.scheduleNextLocked(collection)
	}
	s.logger.Info("scheduler resumed")
}

// Stop cancels all timers and stops scheduling. The trigger channel stays
// open so a later Start reuses the same subscriptions.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusStopped {
		return
	}
	s.status = StatusStopped
	s.cancelAllTimersLocked()
	s.logger.Info("scheduler stopped")
}

// Close stops the scheduler and shuts down its notification channels.
func (s *Scheduler) Close() {
	s.Stop()
	s.triggers.Close()
	s.configChanges.Close()
}

// UpdateConfig replaces the active configuration at runtime, re-arming
// every collection, and publishes the new config on the config-change
// channel.
func (s *Scheduler) UpdateConfig(cfg Config) error {
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = cfg
	if s.status == StatusRunning {
		for collection := range s.states {
			s.scheduleNextLocked(collection)
		}
	}
	s.mu.Unlock()

	s.logger.Info("scheduler config updated", slog.String("mode", string(cfg.Mode)))
	s.configChanges.Publish(cfg)
	return nil
}

// Config returns a copy of the active configuration.
func (s *Scheduler) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Status returns the scheduler's global state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// CollectionState returns a snapshot of one collection's scheduling state.
func (s *Scheduler) CollectionState(collection string) (StateSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[collection]
	if !ok {
		return StateSnapshot{}, false
	}
	return StateSnapshot{
		RetryCount:  st.retryCount,
		Exhausted:   st.exhausted,
		LastSuccess: st.lastSuccess,
		HistoryLen:  len(st.history),
		TimerArmed:  st.timer != nil,
	}, true
}

// TriggerManualSync fires a manual trigger immediately. Manual triggers
// bypass the automatic gates and restart a retry cycle stopped by budget
// exhaustion. It fails when the scheduler is stopped.
func (s *Scheduler) TriggerManualSync(collection string) error {
	s.mu.Lock()
	if s.status == StatusStopped {
		s.mu.Unlock()
		return syncErrors.NewScheduleError(syncErrors.OpSchedule, fmt.Errorf("scheduler is stopped"))
	}
	st := s.ensureStateLocked(collection)
	st.retryCount = 0
	st.exhausted = false
	trigger := newTrigger(TriggerManual, s.clock.Now(), collection)
	s.mu.Unlock()

	s.emit(trigger)
	return nil
}

// NotifyDataChange reports a local data change. In realtime mode it fires a
// dataChange trigger immediately (still gated on pause and offline state);
// in every mode it restarts a retry cycle stopped by budget exhaustion.
func (s *Scheduler) NotifyDataChange(collection string) {
	s.mu.Lock()
	st := s.ensureStateLocked(collection)
	wasExhausted := st.exhausted
	st.exhausted = false

	fire := s.status == StatusRunning && s.cfg.Mode == ModeRealtime && s.network != NetworkOffline
	var trigger Trigger
	if fire {
		trigger = newTrigger(TriggerDataChange, s.clock.Now(), collection)
	} else if wasExhausted && s.status == StatusRunning {
		s.scheduleNextLocked(collection)
	}
	s.mu.Unlock()

	if fire {
		s.emit(trigger)
	}
}

// NotifySyncSuccess reports a successful sync attempt: the retry counter is
// cleared, the success timestamp recorded in the bounded history buffer,
// and the next automatic trigger armed.
func (s *Scheduler) NotifySyncSuccess(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.ensureStateLocked(collection)
	st.retryCount = 0
	st.exhausted = false
	now := s.clock.Now()
	st.lastSuccess = now
	st.history = append(st.history, now)
	if len(st.history) > maxHistoryEntries {
		st.history = st.history[len(st.history)-maxHistoryEntries:]
	}

	if s.status == StatusRunning {
		s.scheduleNextLocked(collection)
	}
}

// ScheduleRetry reports a failed sync attempt. While the retry budget
// lasts, a retry trigger is armed after an exponentially growing delay
// capped by MaxBackoffDelay; once the budget is spent the counter is
// cleared and automatic retries stop for the collection until an external
// trigger (manual sync, data change, app state change) restarts the cycle.
func (s *Scheduler) ScheduleRetry(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.ensureStateLocked(collection)

	if st.retryCount >= s.cfg.MaxRetries {
		st.retryCount = 0
		st.exhausted = true
		s.cancelTimerLocked(st)
		s.metrics.RecordRetryExhausted(collection)
		s.logger.Warn("retry budget exhausted, automatic retries stopped",
			slog.String("collection", collection),
			slog.Int("max_retries", s.cfg.MaxRetries),
		)
		return
	}

	delay := s.backoffDelay(st.retryCount)
	st.retryCount++

	if s.status != StatusRunning {
		return
	}

	s.cancelTimerLocked(st)
	st.timer = s.clock.AfterFunc(delay, func() { s.fire(collection, TriggerRetry) })
	s.metrics.RecordRetryScheduled(collection, st.retryCount, delay)
	s.logger.Debug("retry scheduled",
		slog.String("collection", collection),
		slog.Int("attempt", st.retryCount),
		slog.Duration("delay", delay),
	)
}

// backoffDelay computes retryDelay * multiplier^attempt, capped at
// MaxBackoffDelay. The delay is non-decreasing across successive attempts.
func (s *Scheduler) backoffDelay(attempt int) time.Duration {
	delay := float64(s.cfg.RetryDelay)
	for i := 0; i < attempt; i++ {
		delay *= s.cfg.BackoffMultiplier
	}
	result := time.Duration(delay)
	if result > s.cfg.MaxBackoffDelay {
		result = s.cfg.MaxBackoffDelay
	}
	return result
}

// UpdateNetworkCondition reports the network state. A transition from
// offline to any online condition fires an immediate networkRestore trigger
// when the scheduler is running.
func (s *Scheduler) UpdateNetworkCondition(c NetworkCondition) {
	s.mu.Lock()
	previous := s.network
	s.network = c
	restore := previous == NetworkOffline && c != NetworkOffline && s.status == StatusRunning
	var trigger Trigger
	if restore {
		trigger = newTrigger(TriggerNetworkRestore, s.clock.Now(), "")
	}
	s.mu.Unlock()

	if restore {
		s.logger.Info("network restored", slog.String("condition", string(c)))
		s.emit(trigger)
	}
}

// UpdateBatteryCondition reports the battery state used by the gates.
func (s *Scheduler) UpdateBatteryCondition(c BatteryCondition) {
	s.mu.Lock()
	s.battery = c
	s.mu.Unlock()
}

// NotifyAppStateChange reports the app moving to the foreground (active) or
// background. Becoming active fires an appStateChange trigger and restarts
// any exhausted retry cycles.
func (s *Scheduler) NotifyAppStateChange(active bool) {
	if !active {
		return
	}

	s.mu.Lock()
	if s.status != StatusRunning {
		s.mu.Unlock()
		return
	}
	for collection, st := range s.states {
		if st.exhausted {
			st.exhausted = false
			s.scheduleNextLocked(collection)
		}
	}
	trigger := newTrigger(TriggerAppStateChange, s.clock.Now(), "")
	s.mu.Unlock()

	s.emit(trigger)
}

// OnTrigger subscribes to the trigger channel and returns an unsubscribe
// function. Delivery is multicast and fire-and-forget.
func (s *Scheduler) OnTrigger(handler func(Trigger)) func() {
	return s.triggers.Subscribe(handler)
}

// OnConfigChange subscribes to configuration replacements.
func (s *Scheduler) OnConfigChange(handler func(Config)) func() {
	return s.configChanges.Subscribe(handler)
}

// fire runs when a collection's timer elapses. Gated triggers are dropped
// and the collection re-armed on its normal cadence; allowed triggers are
// published. Automatic cadence is re-armed by the orchestrator's outcome
// callbacks, except in scheduled mode where the next time of day is armed
// right away.
func (s *Scheduler) fire(collection string, tt TriggerType) {
	s.mu.Lock()
	if s.status != StatusRunning {
		s.mu.Unlock()
		return
	}
	st := s.ensureStateLocked(collection)
	st.timer = nil

	if reason, blocked := s.gateLocked(tt); blocked {
		s.metrics.RecordGatedTrigger(collection, reason)
		s.logger.Debug("trigger gated",
			slog.String("collection", collection),
			slog.String("type", string(tt)),
			slog.String("reason", reason),
		)
		s.scheduleNextLocked(collection)
		s.mu.Unlock()
		return
	}

	trigger := newTrigger(tt, s.clock.Now(), collection)
	if s.cfg.Mode == ModeScheduled && tt == TriggerScheduled {
		s.scheduleNextLocked(collection)
	}
	s.mu.Unlock()

	s.emit(trigger)
}

// gateLocked applies the automatic-trigger gates: pause state is handled by
// timer cancellation, so only network and battery conditions are checked.
func (s *Scheduler) gateLocked(tt TriggerType) (string, bool) {
	if !tt.automatic() {
		return "", false
	}
	if s.network == NetworkOffline {
		return "offline", true
	}
	if s.cfg.SyncOnlyOnWifi && !s.network.HighSpeed() {
		return "wifi_required", true
	}
	if s.cfg.SyncOnlyWhenCharging && s.battery != BatteryCharging {
		return "charging_required", true
	}
	if s.battery == BatteryCritical {
		return "battery_critical", true
	}
	return "", false
}

// scheduleNextLocked arms the collection's next automatic trigger per the
// active mode, cancelling any prior pending timer first so at most one
// timer exists per collection.
func (s *Scheduler) scheduleNextLocked(collection string) {
	st := s.ensureStateLocked(collection)
	s.cancelTimerLocked(st)

	if s.status != StatusRunning {
		return
	}

	var (
		delay time.Duration
		tt    TriggerType
	)
	switch s.cfg.Mode {
	case ModeAutomatic:
		delay = s.cfg.intervalFor(collection)
		tt = TriggerInterval
	case ModeIntelligent:
		delay = s.intelligentIntervalLocked(collection, st)
		tt = TriggerIntelligent
	case ModeScheduled:
		delay = s.nextScheduledDelayLocked()
		tt = TriggerScheduled
	default:
		// realtime, manual, hybrid, offline: no automatic timer.
		return
	}

	st.timer = s.clock.AfterFunc(delay, func() { s.fire(collection, tt) })
}

// intelligentIntervalLocked derives the next delay from the mean interval
// between recorded sync times, clamped to the configured window. With
// fewer than two history entries it falls back to the base interval.
func (s *Scheduler) intelligentIntervalLocked(collection string, st *collectionState) time.Duration {
	if len(st.history) < 2 {
		return s.cfg.intervalFor(collection)
	}

	var total time.Duration
	for i := 1; i < len(st.history); i++ {
		total += st.history[i].Sub(st.history[i-1])
	}
	mean := total / time.Duration(len(st.history)-1)

	if mean < s.cfg.IntelligentMinInterval {
		return s.cfg.IntelligentMinInterval
	}
	if mean > s.cfg.IntelligentMaxInterval {
		return s.cfg.IntelligentMaxInterval
	}
	return mean
}

// nextScheduledDelayLocked finds the soonest upcoming time-of-day entry.
func (s *Scheduler) nextScheduledDelayLocked() time.Duration {
	now := s.clock.Now()
	var next time.Time
	for _, t := range s.cfg.ScheduledTimes {
		occurrence := t.Next(now)
		if next.IsZero() || occurrence.Before(next) {
			next = occurrence
		}
	}
	return next.Sub(now)
}

func (s *Scheduler) ensureStateLocked(collection string) *collectionState {
	st, ok := s.states[collection]
	if !ok {
		st = &collectionState{}
		s.states[collection] = st
	}
	return st
}

func (s *Scheduler) cancelTimerLocked(st *collectionState) {
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
}

func (s *Scheduler) cancelAllTimersLocked() {
	for _, st := range s.states {
		s.cancelTimerLocked(st)
	}
}

func (s *Scheduler) emit(t Trigger) {
	s.metrics.RecordTrigger(string(t.Type), t.Collection)
	s.triggers.Publish(t)
}
