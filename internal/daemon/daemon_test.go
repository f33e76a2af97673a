package daemon

import (
	"context"
	"testing"

	"github.com/fluentia/fluentia/internal/app/engagement"
)

func TestNewWithConfig_SQLite(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Dir = t.TempDir()
	cfg.Logging.Level = "error"

	d, err := NewWithConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()

	if d.Jobs.Len() != 1 {
		t.Errorf("expected the reconcile job, got %d jobs", d.Jobs.Len())
	}
	if d.Awards.Notifications() == nil {
		t.Error("notifications should be enabled by default")
	}

	res, err := d.Awards.Complete(context.Background(), engagement.AwardRequest{
		UserID: "u1", Source: "lesson", SourceSlug: "intro",
		DedupeKey: engagement.DefaultDedupeKey("lesson", "intro"),
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if res.XPAwarded != 20 {
		t.Errorf("XPAwarded = %d, want 20", res.XPAwarded)
	}

	d.Health.RunOnce(context.Background())
	if !d.Health.IsHealthy() {
		t.Errorf("unhealthy: %+v", d.Health.Statuses())
	}

	// Second close is a no-op.
	d.Close()
}

func TestNewWithConfig_NoReconcile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Dir = t.TempDir()
	cfg.Reconcile.Interval = ""
	cfg.Notifications.Enabled = false

	d, err := NewWithConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()

	if d.Jobs.Len() != 0 {
		t.Errorf("expected no jobs, got %d", d.Jobs.Len())
	}
	if d.Awards.Notifications() != nil {
		t.Error("notifications should be disabled")
	}
}

func TestNewWithConfig_BadCatalog(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Dir = t.TempDir()
	cfg.Badges.Catalog = "/does/not/exist.yaml"

	if _, err := NewWithConfig(context.Background(), cfg); err == nil {
		t.Fatal("expected catalog error")
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Dir = t.TempDir()
	cfg.API.Port = 0

	d, err := NewWithConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Serve() = %v, want nil", err)
	}
}
