// Package scheduler decides when a sync attempt should fire for each
// collection: fixed intervals, times of day, adaptive intervals learned
// from sync history, or immediate realtime triggers, gated by network,
// battery, and pause state, with exponential-backoff retries. The scheduler
// only times scheduling delays; timing out the sync attempts themselves is
// the orchestrator's job.
package scheduler

import (
	"fmt"
	"time"

	syncErrors "github.com/c0deZ3R0/go-sync-core/errors"
)

// Mode selects the scheduling behavior.
type Mode string

const (
	// ModeAutomatic fires at a fixed interval, optionally overridden per collection.
	ModeAutomatic Mode = "automatic"

	// ModeScheduled fires at configured times of day, each re-armed for its
	// next occurrence after firing.
	ModeScheduled Mode = "scheduled"

	// ModeIntelligent adapts the interval to the observed sync cadence.
	ModeIntelligent Mode = "intelligent"

	// ModeRealtime fires immediately on data-change notifications.
	ModeRealtime Mode = "realtime"

	// ModeManual never fires automatically.
	ModeManual Mode = "manual"

	// ModeHybrid and ModeOffline perform no automatic scheduling.
	ModeHybrid  Mode = "hybrid"
	ModeOffline Mode = "offline"
)

// NetworkCondition is the externally reported network state.
type NetworkCondition string

const (
	NetworkOffline  NetworkCondition = "offline"
	NetworkCellular NetworkCondition = "cellular"
	NetworkWifi     NetworkCondition = "wifi"
	NetworkEthernet NetworkCondition = "ethernet"
)

// HighSpeed reports whether the condition satisfies a wifi-only gate.
func (n NetworkCondition) HighSpeed() bool {
	return n == NetworkWifi || n == NetworkEthernet
}

// BatteryCondition is the externally reported battery state.
type BatteryCondition string

const (
	BatteryCharging BatteryCondition = "charging"
	BatteryNormal   BatteryCondition = "normal"
	BatteryLow      BatteryCondition = "low"
	BatteryCritical BatteryCondition = "critical"
)

// TimeOfDay is a wall-clock firing time for ModeScheduled.
type TimeOfDay struct {
	Hour   int `json:"hour" mapstructure:"hour" yaml:"hour"`
	Minute int `json:"minute" mapstructure:"minute" yaml:"minute"`
}

// Next returns the next occurrence of the time of day strictly after now.
func (t TimeOfDay) Next(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour, t.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Config is the scheduler's active configuration. The scheduler holds one
// copy, replaceable at runtime with UpdateConfig.
type Config struct {
	Mode Mode `json:"mode" mapstructure:"mode" yaml:"mode"`

	// SyncInterval is the base interval for automatic mode and the fallback
	// for intelligent mode with insufficient history.
	SyncInterval time.Duration `json:"sync_interval" mapstructure:"sync_interval" yaml:"sync_interval"`

	// RetryDelay is the base delay for the first retry after a failure.
	RetryDelay time.Duration `json:"retry_delay" mapstructure:"retry_delay" yaml:"retry_delay"`

	// MaxRetries bounds automatic retries per collection; once spent,
	// retries stop until an external trigger restarts the cycle.
	MaxRetries int `json:"max_retries" mapstructure:"max_retries" yaml:"max_retries"`

	// SyncOnlyOnWifi blocks automatic triggers unless the network reports
	// a high-speed condition.
	SyncOnlyOnWifi bool `json:"sync_only_on_wifi" mapstructure:"sync_only_on_wifi" yaml:"sync_only_on_wifi"`

	// SyncOnlyWhenCharging blocks automatic triggers unless the battery
	// reports charging.
	SyncOnlyWhenCharging bool `json:"sync_only_when_charging" mapstructure:"sync_only_when_charging" yaml:"sync_only_when_charging"`

	// IntelligentMinInterval / IntelligentMaxInterval clamp the adaptive
	// interval computed from sync history.
	IntelligentMinInterval time.Duration `json:"intelligent_min_interval" mapstructure:"intelligent_min_interval" yaml:"intelligent_min_interval"`
	IntelligentMaxInterval time.Duration `json:"intelligent_max_interval" mapstructure:"intelligent_max_interval" yaml:"intelligent_max_interval"`

	// CollectionIntervals overrides SyncInterval per collection.
	CollectionIntervals map[string]time.Duration `json:"collection_intervals" mapstructure:"collection_intervals" yaml:"collection_intervals"`

	// BackoffMultiplier grows the retry delay; MaxBackoffDelay caps it.
	BackoffMultiplier float64       `json:"backoff_multiplier" mapstructure:"backoff_multiplier" yaml:"backoff_multiplier"`
	MaxBackoffDelay   time.Duration `json:"max_backoff_delay" mapstructure:"max_backoff_delay" yaml:"max_backoff_delay"`

	// ScheduledTimes lists the firing times for ModeScheduled.
	ScheduledTimes []TimeOfDay `json:"scheduled_times" mapstructure:"scheduled_times" yaml:"scheduled_times"`
}

// DefaultConfig returns a Config with production-ready defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                   ModeAutomatic,
		SyncInterval:           15 * time.Minute,
		RetryDelay:             30 * time.Second,
		MaxRetries:             3,
		IntelligentMinInterval: time.Minute,
		IntelligentMaxInterval: 4 * time.Hour,
		BackoffMultiplier:      2.0,
		MaxBackoffDelay:        10 * time.Minute,
	}
}

// setDefaults fills zero values with the defaults above.
func (c *Config) setDefaults() {
	def := DefaultConfig()
	if c.Mode == "" {
		c.Mode = def.Mode
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = def.SyncInterval
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = def.RetryDelay
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.IntelligentMinInterval <= 0 {
		c.IntelligentMinInterval = def.IntelligentMinInterval
	}
	if c.IntelligentMaxInterval <= 0 {
		c.IntelligentMaxInterval = def.IntelligentMaxInterval
	}
	if c.BackoffMultiplier <= 1 {
		c.BackoffMultiplier = def.BackoffMultiplier
	}
	if c.MaxBackoffDelay <= 0 {
		c.MaxBackoffDelay = def.MaxBackoffDelay
	}
}

// Validate rejects configurations the scheduler cannot run with.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeAutomatic, ModeScheduled, ModeIntelligent, ModeRealtime, ModeManual, ModeHybrid, ModeOffline:
	default:
		return syncErrors.NewScheduleError(syncErrors.OpConfigure, fmt.Errorf("unknown mode %q", c.Mode))
	}
	if c.Mode == ModeScheduled && len(c.ScheduledTimes) == 0 {
		return syncErrors.NewScheduleError(syncErrors.OpConfigure, fmt.Errorf("scheduled mode requires at least one time of day"))
	}
	for _, t := range c.ScheduledTimes {
		if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
			return syncErrors.NewScheduleError(syncErrors.OpConfigure, fmt.Errorf("invalid time of day %02d:%02d", t.Hour, t.Minute))
		}
	}
	if c.IntelligentMinInterval > c.IntelligentMaxInterval {
		return syncErrors.NewScheduleError(syncErrors.OpConfigure, fmt.Errorf("intelligent interval window inverted"))
	}
	return nil
}

// intervalFor returns the base interval for a collection, honoring overrides.
func (c Config) intervalFor(collection string) time.Duration {
	if d, ok := c.CollectionIntervals[collection]; ok && d > 0 {
		return d
	}
	return c.SyncInterval
}
