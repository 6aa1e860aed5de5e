// Package config loads the sync core's configuration from files and
// environment variables. YAML, JSON, and TOML files are supported; every
// key can be overridden through SYNC_CORE_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	syncErrors "github.com/c0deZ3R0/go-sync-core/errors"
	"github.com/c0deZ3R0/go-sync-core/logging"
	"github.com/c0deZ3R0/go-sync-core/scheduler"
)

// Config is the top-level configuration for the sync core.
type Config struct {
	Logging   logging.Config   `mapstructure:"logging"`
	Scheduler scheduler.Config `mapstructure:"scheduler"`
	Storage   StorageConfig    `mapstructure:"storage"`
	Recovery  RecoveryConfig   `mapstructure:"recovery"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`

	// DSN is the driver-specific connection string.
	DSN string `mapstructure:"dsn"`

	MaxOpenConns    int `mapstructure:"max_open_conns"`
	MaxIdleConns    int `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int `mapstructure:"conn_max_lifetime_minutes"`
}

// RecoveryConfig holds the defaults recovery operations run with.
type RecoveryConfig struct {
	// VerifyRestoreIntegrity controls the default for restore verification.
	VerifyRestoreIntegrity bool `mapstructure:"verify_restore_integrity"`

	// CreatePreRestoreBackup controls the default safety snapshot.
	CreatePreRestoreBackup bool `mapstructure:"create_pre_restore_backup"`

	// AllowDestructiveAutoRecover lets autoRecover run destructive repairs.
	AllowDestructiveAutoRecover bool `mapstructure:"allow_destructive_auto_recover"`
}

// Default returns a configuration with every component at its defaults.
func Default() Config {
	return Config{
		Logging:   logging.DefaultConfig,
		Scheduler: scheduler.DefaultConfig(),
		Storage: StorageConfig{
			Driver:          "sqlite",
			DSN:             "sync-core.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30,
		},
		Recovery: RecoveryConfig{
			VerifyRestoreIntegrity: true,
			CreatePreRestoreBackup: true,
		},
	}
}

// Load reads configuration from the given file (optional: pass "" to use
// only defaults and environment variables) and applies SYNC_CORE_ env
// overrides, e.g. SYNC_CORE_SCHEDULER_MODE=realtime.
func Load(path string) (Config, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("logging", structToMap(defaults.Logging))
	v.SetDefault("scheduler", structToMap(defaults.Scheduler))
	v.SetDefault("storage", structToMap(defaults.Storage))
	v.SetDefault("recovery", structToMap(defaults.Recovery))

	v.SetEnvPrefix("SYNC_CORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, syncErrors.NewWithComponent(syncErrors.OpConfigure, "config",
				fmt.Errorf("reading %s: %w", path, err))
		}
	}

	var cfg Config
	decodeOpt := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeOpt); err != nil {
		return Config{}, syncErrors.NewWithComponent(syncErrors.OpConfigure, "config",
			fmt.Errorf("decoding configuration: %w", err))
	}

	if err := cfg.Scheduler.Validate(); err != nil {
		return Config{}, err
	}
	if err := cfg.validateStorage(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validateStorage() error {
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return syncErrors.NewValidationError(syncErrors.OpConfigure,
			fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Storage.DSN == "" {
		return syncErrors.NewValidationError(syncErrors.OpConfigure,
			fmt.Errorf("storage dsn must not be empty"))
	}
	return nil
}

// structToMap converts a struct with mapstructure tags into the map form
// viper.SetDefault expects, so file and env values merge over defaults
// key by key instead of replacing the whole section.
func structToMap(s any) map[string]any {
	out := make(map[string]any)
	if err := mapstructure.Decode(s, &out); err != nil {
		return map[string]any{}
	}
	return out
}
