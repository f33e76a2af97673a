// Package daemon manages the Fluentia daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/fluentia/fluentia/internal/app/engagement"
	"github.com/fluentia/fluentia/internal/domain"
	"github.com/fluentia/fluentia/internal/infra/events"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all daemon configuration.
type Config struct {
	API           APIConfig           `toml:"api"`
	Store         StoreConfig         `toml:"store"`
	Levels        LevelsConfig        `toml:"levels"`
	XP            engagement.Policy   `toml:"xp"`
	Badges        BadgesConfig        `toml:"badges"`
	Notifications NotificationsConfig `toml:"notifications"`
	Events        EventsConfig        `toml:"events"`
	Reconcile     ReconcileConfig     `toml:"reconcile"`
	Logging       LoggingConfig       `toml:"logging"`
	Telemetry     TelemetryConfig     `toml:"telemetry"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Timeout string `toml:"timeout"`
}

// StoreConfig selects the progress store.
type StoreConfig struct {
	Driver string `toml:"driver"` // "sqlite" or "postgres"
	Dir    string `toml:"dir"`    // sqlite data directory
	DSN    string `toml:"dsn"`    // postgres connection string
}

// LevelsConfig sets the level curve.
type LevelsConfig struct {
	FirstThreshold int64   `toml:"first_threshold"`
	Growth         float64 `toml:"growth"`
}

// BadgesConfig points at a badge catalog. Empty uses the built-in one.
type BadgesConfig struct {
	Catalog string `toml:"catalog"`
}

// NotificationsConfig controls notification throttling.
type NotificationsConfig struct {
	Enabled    bool   `toml:"enabled"`
	MaxPerDay  int    `toml:"max_per_day"`
	QuietStart string `toml:"quiet_start"`
	QuietEnd   string `toml:"quiet_end"`
}

// EventsConfig enables award events on Redis pub/sub.
type EventsConfig struct {
	RedisAddr       string `toml:"redis_addr"`
	Channel         string `toml:"channel"`
	PublishTimeout  string `toml:"publish_timeout"`
	BreakerFailures int    `toml:"breaker_failures"`
	BreakerReset    string `toml:"breaker_reset"`
}

// ReconcileConfig schedules ledger reconciliation. Empty interval disables it.
type ReconcileConfig struct {
	Interval string `toml:"interval"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `toml:"level"`
	Mode  string `toml:"mode"` // "dev" or "prod"
}

// TelemetryConfig controls metrics exposure.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	np := domain.DefaultNotificationPolicy()
	return Config{
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    8088,
			Timeout: "30s",
		},
		Store: StoreConfig{
			Driver: DriverSQLite,
			Dir:    fluentiaHome(),
		},
		Levels: LevelsConfig{
			FirstThreshold: engagement.DefaultCurve.FirstThreshold,
			Growth:         engagement.DefaultCurve.Growth,
		},
		XP: engagement.DefaultPolicy(),
		Notifications: NotificationsConfig{
			Enabled:    true,
			MaxPerDay:  np.MaxPerDay,
			QuietStart: np.QuietStart,
			QuietEnd:   np.QuietEnd,
		},
		Events: EventsConfig{
			Channel:         events.DefaultChannel,
			PublishTimeout:  "2s",
			BreakerFailures: 5,
			BreakerReset:    "30s",
		},
		Reconcile: ReconcileConfig{
			Interval: "1h",
		},
		Logging: LoggingConfig{
			Level: "info",
			Mode:  "dev",
		},
	}
}

// LoadConfig reads ~/.fluentia/config.toml, falling back to defaults.
// A .env file in the working directory is loaded first, and FLUENTIA_*
// variables override the file.
func LoadConfig() (Config, error) {
	// Missing .env is normal.
	_ = godotenv.Load()
	return LoadConfigFile(filepath.Join(fluentiaHome(), "config.toml"))
}

// LoadConfigFile reads the config at path. A missing file yields defaults.
// An [xp.sources.<name>] table replaces that source's default row.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("stat config: %w", err)
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("FLUENTIA_DB_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("FLUENTIA_POSTGRES_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("FLUENTIA_REDIS_ADDR"); v != "" {
		cfg.Events.RedisAddr = v
	}
	if v := os.Getenv("FLUENTIA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks values that would otherwise fail deep inside a service.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: store.dsn is required for postgres", domain.ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("%w: unknown store driver %q", domain.ErrInvalidArgument, c.Store.Driver)
	}
	if err := c.Curve().Validate(); err != nil {
		return err
	}
	if err := c.XP.Validate(); err != nil {
		return err
	}
	if c.Notifications.MaxPerDay < 0 {
		return fmt.Errorf("%w: notifications.max_per_day must be >= 0", domain.ErrInvalidArgument)
	}
	for _, s := range []string{c.Notifications.QuietStart, c.Notifications.QuietEnd} {
		if err := engagement.ValidateClock(s); err != nil {
			return err
		}
	}
	if c.Reconcile.Interval != "" {
		if d, err := time.ParseDuration(c.Reconcile.Interval); err != nil || d <= 0 {
			return fmt.Errorf("%w: reconcile.interval %q", domain.ErrInvalidArgument, c.Reconcile.Interval)
		}
	}
	return nil
}

// Curve returns the configured level curve.
func (c Config) Curve() engagement.Curve {
	return engagement.Curve{FirstThreshold: c.Levels.FirstThreshold, Growth: c.Levels.Growth}
}

// NotificationPolicy returns the configured notification policy.
func (c Config) NotificationPolicy() domain.NotificationPolicy {
	return domain.NotificationPolicy{
		MaxPerDay:  c.Notifications.MaxPerDay,
		QuietStart: c.Notifications.QuietStart,
		QuietEnd:   c.Notifications.QuietEnd,
	}
}

// SaveConfig writes the config to ~/.fluentia/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(fluentiaHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// fluentiaHome returns the Fluentia data directory.
func fluentiaHome() string {
	if env := os.Getenv("FLUENTIA_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".fluentia")
}

// Home is exported for use by other packages.
func Home() string {
	return fluentiaHome()
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
