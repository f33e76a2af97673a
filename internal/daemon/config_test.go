package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fluentia/fluentia/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 8088 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 8088)
	}
	if cfg.Store.Driver != DriverSQLite {
		t.Errorf("Store.Driver = %q, want %q", cfg.Store.Driver, DriverSQLite)
	}
	if cfg.Levels.FirstThreshold != 100 || cfg.Levels.Growth != 1.2 {
		t.Errorf("Levels = %+v, want {100 1.2}", cfg.Levels)
	}
	if got := cfg.XP.Sources["grammar"].Base; got != 10 {
		t.Errorf("grammar base = %d, want 10", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigFile_Missing(t *testing.T) {
	cfg, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}
	if cfg.API.Port != 8088 {
		t.Errorf("expected defaults, got port %d", cfg.API.Port)
	}
}

func TestLoadConfigFile_Overrides(t *testing.T) {
	path := writeConfig(t, `
[api]
port = 9000

[levels]
first_threshold = 50
growth = 1.5

[xp.sources.grammar]
base = 12

[xp.sources.podcast]
base = 7
per_correct = 1

[notifications]
max_per_day = 5

[reconcile]
interval = "15m"
`)
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.API.Port)
	}
	if c := cfg.Curve(); c.FirstThreshold != 50 || c.Growth != 1.5 {
		t.Errorf("curve = %+v", c)
	}
	if got := cfg.XP.Sources["grammar"].Base; got != 12 {
		t.Errorf("grammar base = %d, want 12", got)
	}
	if got := cfg.XP.Sources["podcast"]; got.Base != 7 || got.PerCorrect != 1 {
		t.Errorf("podcast = %+v", got)
	}
	if _, ok := cfg.XP.Sources["story"]; !ok {
		t.Error("unlisted default sources should survive")
	}
	if cfg.NotificationPolicy().MaxPerDay != 5 {
		t.Errorf("max_per_day = %d, want 5", cfg.NotificationPolicy().MaxPerDay)
	}
	if got := parseDuration(cfg.Reconcile.Interval, 0); got != 15*time.Minute {
		t.Errorf("reconcile interval = %v", got)
	}
}

func TestLoadConfigFile_Env(t *testing.T) {
	t.Setenv("FLUENTIA_DB_DRIVER", "postgres")
	t.Setenv("FLUENTIA_POSTGRES_DSN", "postgres://localhost/fluentia")
	t.Setenv("FLUENTIA_REDIS_ADDR", "localhost:6379")

	cfg, err := LoadConfigFile(writeConfig(t, "[store]\ndriver = \"sqlite\"\n"))
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}
	if cfg.Store.Driver != DriverPostgres || cfg.Store.DSN != "postgres://localhost/fluentia" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Events.RedisAddr != "localhost:6379" {
		t.Errorf("redis addr = %q", cfg.Events.RedisAddr)
	}
}

func TestLoadConfigFile_Invalid(t *testing.T) {
	cases := map[string]string{
		"driver":       "[store]\ndriver = \"mysql\"\n",
		"postgres dsn": "[store]\ndriver = \"postgres\"\n",
		"growth":       "[levels]\ngrowth = 1.0\n",
		"negative xp":  "[xp.sources.grammar]\nbase = -1\n",
		"quiet hours":  "[notifications]\nquiet_start = \"25:00\"\n",
		"interval":     "[reconcile]\ninterval = \"soon\"\n",
	}
	for name, body := range cases {
		_, err := LoadConfigFile(writeConfig(t, body))
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("%s: got %v, want ErrInvalidArgument", name, err)
		}
	}

	if _, err := LoadConfigFile(writeConfig(t, "[api\n")); err == nil {
		t.Error("expected parse error")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	t.Setenv("FLUENTIA_HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.API.Port = 9100
	cfg.Telemetry.Prometheus = true
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}

	got, err := LoadConfigFile(filepath.Join(Home(), "config.toml"))
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}
	if got.API.Port != 9100 || !got.Telemetry.Prometheus {
		t.Errorf("round trip lost values: %+v", got.API)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"30s", 30 * time.Second},
		{"1h", time.Hour},
		{"", time.Minute},
		{"bogus", time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseDuration(tt.input, time.Minute); got != tt.want {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
