package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// triggerRecorder collects published triggers for assertions. Delivery is
// asynchronous, so waiters poll with a deadline.
type triggerRecorder struct {
	mu       sync.Mutex
	triggers []Trigger
}

func (r *triggerRecorder) record(t Trigger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers = append(r.triggers, t)
}

func (r *triggerRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.triggers)
}

func (r *triggerRecorder) all() []Trigger {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Trigger, len(r.triggers))
	copy(out, r.triggers)
	return out
}

func (r *triggerRecorder) waitFor(t *testing.T, n int) []Trigger {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.count() >= n {
			return r.all()
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d trigger(s), have %d", n, r.count())
	return nil
}

func (r *triggerRecorder) assertNone(t *testing.T) {
	t.Helper()
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, r.count(), "expected no triggers, got %v", r.all())
}

// retryMetrics records the delays handed to retry timers.
type retryMetrics struct {
	NoOpMetricsCollector
	mu        sync.Mutex
	delays    []time.Duration
	exhausted []string
	gated     []string
}

func (m *retryMetrics) RecordRetryScheduled(collection string, attempt int, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays = append(m.delays, delay)
}

func (m *retryMetrics) RecordRetryExhausted(collection string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exhausted = append(m.exhausted, collection)
}

func (m *retryMetrics) RecordGatedTrigger(collection, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gated = append(m.gated, reason)
}

func newTestScheduler(t *testing.T, cfg Config, clock Clock, metrics MetricsCollector) *Scheduler {
	t.Helper()
	opts := []Option{WithClock(clock)}
	if metrics != nil {
		opts = append(opts, WithMetrics(metrics))
	}
	s, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestManualTriggerBypassesGates(t *testing.T) {
	clock := NewManualClock(time.Now())
	cfg := DefaultConfig()
	cfg.Mode = ModeManual
	cfg.SyncOnlyOnWifi = true

	s := newTestScheduler(t, cfg, clock, nil)
	rec := &triggerRecorder{}
	defer s.OnTrigger(rec.record)()

	require.NoError(t, s.Start("tasks"))
	s.UpdateNetworkCondition(NetworkCellular)

	require.NoError(t, s.TriggerManualSync("tasks"))
	triggers := rec.waitFor(t, 1)
	assert.Equal(t, TriggerManual, triggers[0].Type)
	assert.Equal(t, "tasks", triggers[0].Collection)
}

func TestManualTriggerFailsWhenStopped(t *testing.T) {
	s := newTestScheduler(t, DefaultConfig(), NewManualClock(time.Now()), nil)
	assert.Error(t, s.TriggerManualSync("tasks"))
}

// A failing sync with maxRetries=3 and a 30s base delay must retry after
// 30s, 60s, and 120s, then stop until an external trigger restarts the
// cycle.
func TestRetryBackoffSequenceAndExhaustion(t *testing.T) {
	clock := NewManualClock(time.Now())
	cfg := DefaultConfig()
	cfg.Mode = ModeManual
	cfg.RetryDelay = 30 * time.Second
	cfg.MaxRetries = 3
	cfg.BackoffMultiplier = 2.0

	metrics := &retryMetrics{}
	s := newTestScheduler(t, cfg, clock, metrics)
	rec := &triggerRecorder{}
	defer s.OnTrigger(rec.record)()

	require.NoError(t, s.Start("tasks"))

	expected := []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}
	for i, delay := range expected {
		s.ScheduleRetry("tasks")

		// Just before the deadline nothing fires.
		clock.Advance(delay - time.Second)
		require.Equal(t, i, rec.count(), "retry %d fired early", i+1)

		clock.Advance(time.Second)
		triggers := rec.waitFor(t, i+1)
		assert.Equal(t, TriggerRetry, triggers[i].Type)
	}

	metrics.mu.Lock()
	assert.Equal(t, expected, metrics.delays)
	metrics.mu.Unlock()

	// Budget spent: the next failure stops the cycle instead of arming a timer.
	s.ScheduleRetry("tasks")
	snapshot, ok := s.CollectionState("tasks")
	require.True(t, ok)
	assert.True(t, snapshot.Exhausted)
	assert.Zero(t, snapshot.RetryCount)
	assert.False(t, snapshot.TimerArmed)

	metrics.mu.Lock()
	assert.Equal(t, []string{"tasks"}, metrics.exhausted)
	metrics.mu.Unlock()

	clock.Advance(time.Hour)
	assert.Equal(t, len(expected), rec.count(), "no retries after exhaustion")

	// An external trigger restarts the cycle.
	require.NoError(t, s.TriggerManualSync("tasks"))
	rec.waitFor(t, len(expected)+1)
	snapshot, _ = s.CollectionState("tasks")
	assert.False(t, snapshot.Exhausted)
}

func TestRetryDelayCapped(t *testing.T) {
	clock := NewManualClock(time.Now())
	cfg := DefaultConfig()
	cfg.Mode = ModeManual
	cfg.RetryDelay = 4 * time.Minute
	cfg.MaxRetries = 3
	cfg.BackoffMultiplier = 2.0
	cfg.MaxBackoffDelay = 10 * time.Minute

	metrics := &retryMetrics{}
	s := newTestScheduler(t, cfg, clock, metrics)
	rec := &triggerRecorder{}
	defer s.OnTrigger(rec.record)()

	require.NoError(t, s.Start("tasks"))

	for i := 0; i < 3; i++ {
		s.ScheduleRetry("tasks")
		clock.Advance(10 * time.Minute)
		rec.waitFor(t, i+1)
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	require.Len(t, metrics.delays, 3)
	assert.Equal(t, 4*time.Minute, metrics.delays[0])
	assert.Equal(t, 8*time.Minute, metrics.delays[1])
	assert.Equal(t, 10*time.Minute, metrics.delays[2], "third delay capped")

	// Non-decreasing sequence.
	for i := 1; i < len(metrics.delays); i++ {
		assert.GreaterOrEqual(t, metrics.delays[i], metrics.delays[i-1])
	}
}

func TestSuccessClearsRetryState(t *testing.T) {
	clock := NewManualClock(time.Now())
	cfg := DefaultConfig()
	cfg.Mode = ModeManual

	s := newTestScheduler(t, cfg, clock, nil)
	require.NoError(t, s.Start("tasks"))

	s.ScheduleRetry("tasks")
	snapshot, _ := s.CollectionState("tasks")
	require.Equal(t, 1, snapshot.RetryCount)

	s.NotifySyncSuccess("tasks")
	snapshot, _ = s.CollectionState("tasks")
	assert.Zero(t, snapshot.RetryCount)
	assert.Equal(t, 1, snapshot.HistoryLen)
	assert.Equal(t, clock.Now(), snapshot.LastSuccess)
}

func TestHistoryBounded(t *testing.T) {
	clock := NewManualClock(time.Now())
	cfg := DefaultConfig()
	cfg.Mode = ModeManual

	s := newTestScheduler(t, cfg, clock, nil)
	require.NoError(t, s.Start("tasks"))

	for i := 0; i < 75; i++ {
		clock.Advance(time.Minute)
		s.NotifySyncSuccess("tasks")
	}

	snapshot, _ := s.CollectionState("tasks")
	assert.Equal(t, maxHistoryEntries, snapshot.HistoryLen)
}

func TestIntervalModeFiresAndReArmsOnSuccess(t *testing.T) {
	clock := NewManualClock(time.Now())
	cfg := DefaultConfig()
	cfg.Mode = ModeAutomatic
	cfg.SyncInterval = 5 * time.Minute

	s := newTestScheduler(t, cfg, clock, nil)
	rec := &triggerRecorder{}
	defer s.OnTrigger(rec.record)()

	require.NoError(t, s.Start("tasks"))
	require.Equal(t, 1, clock.PendingTimers())

	clock.Advance(5 * time.Minute)
	triggers := rec.waitFor(t, 1)
	assert.Equal(t, TriggerInterval, triggers[0].Type)

	// The next interval arms when the orchestrator reports the outcome.
	assert.Zero(t, clock.PendingTimers())
	s.NotifySyncSuccess("tasks")
	assert.Equal(t, 1, clock.PendingTimers())

	clock.Advance(5 * time.Minute)
	rec.waitFor(t, 2)
}

func TestPerCollectionIntervalOverride(t *testing.T) {
	clock := NewManualClock(time.Now())
	cfg := DefaultConfig()
	cfg.Mode = ModeAutomatic
	cfg.SyncInterval = time.Hour
	cfg.CollectionIntervals = map[string]time.Duration{"notes": time.Minute}

	s := newTestScheduler(t, cfg, clock, nil)
	rec := &triggerRecorder{}
	defer s.OnTrigger(rec.record)()

	require.NoError(t, s.Start("tasks", "notes"))

	clock.Advance(time.Minute)
	triggers := rec.waitFor(t, 1)
	assert.Equal(t, "notes", triggers[0].Collection)
	assert.Equal(t, 1, rec.count(), "tasks must not fire yet")
}

func TestOfflineGatesAutomaticTriggers(t *testing.T) {
	clock := NewManualClock(time.Now())
	cfg := DefaultConfig()
	cfg.Mode = ModeAutomatic
	cfg.SyncInterval = time.Minute

	metrics := &retryMetrics{}
	s := newTestScheduler(t, cfg, clock, metrics)
	rec := &triggerRecorder{}
	defer s.OnTrigger(rec.record)()

	require.NoError(t, s.Start("tasks"))
	s.UpdateNetworkCondition(NetworkOffline)

	clock.Advance(time.Minute)
	rec.assertNone(t)

	metrics.mu.Lock()
	assert.Equal(t, []string{"offline"}, metrics.gated)
	metrics.mu.Unlock()

	// Gated collections stay armed on their normal cadence.
	assert.Equal(t, 1, clock.PendingTimers())
}

func TestWifiOnlyGate(t *testing.T) {
	clock := NewManualClock(time.Now())
	cfg := DefaultConfig()
	cfg.Mode = ModeAutomatic
	cfg.SyncInterval = time.Minute
	cfg.SyncOnlyOnWifi = true

	metrics := &retryMetrics{}
	s := newTestScheduler(t, cfg, clock, metrics)
	rec := &triggerRecorder{}
	defer s.OnTrigger(rec.record)()

	require.NoError(t, s.Start("tasks"))
	s.UpdateNetworkCondition(NetworkCellular)

	clock.Advance(time.Minute)
	rec.assertNone(t)

	s.UpdateNetworkCondition(NetworkWifi)
	clock.Advance(time.Minute)
	triggers := rec.waitFor(t, 1)
	assert.Equal(t, TriggerInterval, triggers[0].Type)
}

func TestCriticalBatteryGate(t *testing.T) {
	clock := NewManualClock(time.Now())
	cfg := DefaultConfig()
	cfg.Mode = ModeAutomatic
	cfg.SyncInterval = time.Minute

	s := newTestScheduler(t, cfg, clock, nil)
	rec := &triggerRecorder{}
	defer s.OnTrigger(rec.record)()

	require.NoError(t, s.Start("tasks"))
	s.UpdateBatteryCondition(BatteryCritical)

	clock.Advance(time.Minute)
	rec.assertNone(t)
}

func TestNetworkRestoreTrigger(t *testing.T) {
	clock := NewManualClock(time.Now())
	cfg := DefaultConfig()
	cfg.Mode = ModeManual

	s := newTestScheduler(t, cfg, clock, nil)
	rec := &triggerRecorder{}
	defer s.OnTrigger(rec.record)()

	require.NoError(t, s.Start("tasks"))

	s.UpdateNetworkCondition(NetworkOffline)
	rec.assertNone(t)

	s.UpdateNetworkCondition(NetworkWifi)
	triggers := rec.waitFor(t, 1)
	assert.Equal(t, TriggerNetworkRestore, triggers[0].Type)
	assert.Empty(t, triggers[0].Collection, "network restore applies to all collections")

	// Online-to-online transitions do not fire.
	s.UpdateNetworkCondition(NetworkEthernet)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestRealtimeDataChange(t *testing.T) {
	clock := NewManualClock(time.Now())
	cfg := DefaultConfig()
	cfg.Mode = ModeRealtime

	s := newTestScheduler(t, cfg, clock, nil)
	rec := &triggerRecorder{}
	defer s.OnTrigger(rec.record)()

	require.NoError(t, s.Start("tasks"))
	assert.Zero(t, clock.PendingTimers(), "realtime mode arms no timers")

	s.NotifyDataChange("tasks")
	triggers := rec.waitFor(t, 1)
	assert.Equal(t, TriggerDataChange, triggers[0].Type)

	// Offline data changes are queued by the orchestrator, not fired here.
	s.UpdateNetworkCondition(NetworkOffline)
	s.NotifyDataChange("tasks")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestPauseCancelsTimersAndResumeReArms(t *testing.T) {
	clock := NewManualClock(time.Now())
	cfg := DefaultConfig()
	cfg.Mode = ModeAutomatic
	cfg.SyncInterval = time.Minute

	s := newTestScheduler(t, cfg, clock, nil)
	rec := &triggerRecorder{}
	defer s.OnTrigger(rec.record)()

	require.NoError(t, s.Start("tasks"))
	require.Equal(t, 1, clock.PendingTimers())

	s.Pause()
	assert.Zero(t, clock.PendingTimers(), "pause cancels pending timers immediately")
	clock.Advance(time.Hour)
	rec.assertNone(t)

	s.Resume()
	assert.Equal(t, 1, clock.PendingTimers())
	clock.Advance(time.Minute)
	rec.waitFor(t, 1)
}

func TestScheduledModeFiresAtTimeOfDay(t *testing.T) {
	start := time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)
	cfg := DefaultConfig()
	cfg.Mode = ModeScheduled
	cfg.ScheduledTimes = []TimeOfDay{{Hour: 2, Minute: 0}}

	s := newTestScheduler(t, cfg, clock, nil)
	rec := &triggerRecorder{}
	defer s.OnTrigger(rec.record)()

	require.NoError(t, s.Start("tasks"))

	clock.Advance(time.Hour)
	triggers := rec.waitFor(t, 1)
	assert.Equal(t, TriggerScheduled, triggers[0].Type)

	// Scheduled mode re-arms for the next day by itself.
	assert.Equal(t, 1, clock.PendingTimers())
	clock.Advance(24 * time.Hour)
	rec.waitFor(t, 2)
}

func TestIntelligentIntervalAdapts(t *testing.T) {
	clock := NewManualClock(time.Now())
	cfg := DefaultConfig()
	cfg.Mode = ModeIntelligent
	cfg.SyncInterval = 15 * time.Minute
	cfg.IntelligentMinInterval = time.Minute
	cfg.IntelligentMaxInterval = 4 * time.Hour

	s := newTestScheduler(t, cfg, clock, nil)
	rec := &triggerRecorder{}
	defer s.OnTrigger(rec.record)()

	require.NoError(t, s.Start("tasks"))

	// Build a 10m/20m cadence: mean gap 15m.
	s.NotifySyncSuccess("tasks")
	clock.Advance(10 * time.Minute)
	s.NotifySyncSuccess("tasks") // mean now 10m, timer re-armed accordingly
	clock.Advance(20 * time.Minute)
	rec.waitFor(t, 1) // the 10m timer fired mid-advance
	s.NotifySyncSuccess("tasks")

	// History gaps are now 10m and 20m: the next delay is their 15m mean.
	clock.Advance(15*time.Minute - time.Second)
	assert.Equal(t, 1, rec.count(), "mean interval not yet elapsed")
	clock.Advance(time.Second)
	rec.waitFor(t, 2)
}

func TestIntelligentIntervalClampedToMinimum(t *testing.T) {
	clock := NewManualClock(time.Now())
	cfg := DefaultConfig()
	cfg.Mode = ModeIntelligent
	cfg.IntelligentMinInterval = time.Minute
	cfg.IntelligentMaxInterval = 4 * time.Hour

	s := newTestScheduler(t, cfg, clock, nil)
	rec := &triggerRecorder{}
	defer s.OnTrigger(rec.record)()

	require.NoError(t, s.Start("tasks"))

	// Rapid successes 10s apart would yield a 10s mean; the window clamps it.
	s.NotifySyncSuccess("tasks")
	clock.Advance(10 * time.Second)
	s.NotifySyncSuccess("tasks")
	clock.Advance(10 * time.Second)
	s.NotifySyncSuccess("tasks")

	before := rec.count()
	clock.Advance(30 * time.Second)
	assert.Equal(t, before, rec.count(), "clamped interval must not fire at the raw mean")
	clock.Advance(30 * time.Second)
	rec.waitFor(t, before+1)
}

func TestAppStateChangeRestartsExhaustedCycles(t *testing.T) {
	clock := NewManualClock(time.Now())
	cfg := DefaultConfig()
	cfg.Mode = ModeAutomatic
	cfg.SyncInterval = time.Hour
	cfg.MaxRetries = 1

	s := newTestScheduler(t, cfg, clock, nil)
	rec := &triggerRecorder{}
	defer s.OnTrigger(rec.record)()

	require.NoError(t, s.Start("tasks"))
	s.ScheduleRetry("tasks")
	s.ScheduleRetry("tasks") // budget of 1 spent

	snapshot, _ := s.CollectionState("tasks")
	require.True(t, snapshot.Exhausted)

	s.NotifyAppStateChange(true)
	triggers := rec.waitFor(t, 1)
	assert.Equal(t, TriggerAppStateChange, triggers[0].Type)

	snapshot, _ = s.CollectionState("tasks")
	assert.False(t, snapshot.Exhausted)
	assert.True(t, snapshot.TimerArmed, "cycle re-armed after app became active")

	// Backgrounding is a no-op.
	s.NotifyAppStateChange(false)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestUpdateConfigPublishesAndReArms(t *testing.T) {
	clock := NewManualClock(time.Now())
	cfg := DefaultConfig()
	cfg.Mode = ModeManual

	s := newTestScheduler(t, cfg, clock, nil)
	rec := &triggerRecorder{}
	defer s.OnTrigger(rec.record)()

	configs := make(chan Config, 1)
	defer s.OnConfigChange(func(c Config) { configs <- c })()

	require.NoError(t, s.Start("tasks"))
	assert.Zero(t, clock.PendingTimers())

	next := DefaultConfig()
	next.Mode = ModeAutomatic
	next.SyncInterval = time.Minute
	require.NoError(t, s.UpdateConfig(next))

	select {
	case got := <-configs:
		assert.Equal(t, ModeAutomatic, got.Mode)
	case <-time.After(time.Second):
		t.Fatal("config change not published")
	}

	assert.Equal(t, 1, clock.PendingTimers(), "mode switch re-arms timers")
	clock.Advance(time.Minute)
	rec.waitFor(t, 1)
}

func TestUpdateConfigRejectsInvalid(t *testing.T) {
	s := newTestScheduler(t, DefaultConfig(), NewManualClock(time.Now()), nil)
	bad := DefaultConfig()
	bad.Mode = ModeScheduled // no scheduled times
	assert.Error(t, s.UpdateConfig(bad))
}
