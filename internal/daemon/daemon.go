package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fluentia/fluentia/internal/api"
	"github.com/fluentia/fluentia/internal/app/engagement"
	"github.com/fluentia/fluentia/internal/domain"
	"github.com/fluentia/fluentia/internal/health"
	"github.com/fluentia/fluentia/internal/infra/events"
	"github.com/fluentia/fluentia/internal/infra/healing"
	"github.com/fluentia/fluentia/internal/infra/postgres"
	"github.com/fluentia/fluentia/internal/infra/scheduler"
	"github.com/fluentia/fluentia/internal/infra/sqlite"
	"github.com/fluentia/fluentia/internal/pkg/logger"
)

// Store is a progress store that also keeps notifications.
type Store interface {
	domain.ProgressStore
	domain.NotificationStore
}

// Daemon is the core Fluentia runtime. It wires together all services.
type Daemon struct {
	Config Config
	Log    *logger.Logger
	Store  Store
	Awards *engagement.Orchestrator
	Health *health.Checker
	Jobs   *scheduler.Scheduler
	Server *api.Server
	events domain.EventPublisher
	cancel context.CancelFunc
	closed sync.Once
}

// New loads the configuration and creates a Daemon.
func New(ctx context.Context) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(ctx context.Context, cfg Config) (*Daemon, error) {
	log, err := logger.New(cfg.Logging.Mode, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	awards, err := BuildOrchestrator(cfg, store, log)
	if err != nil {
		store.Close()
		return nil, err
	}

	d := &Daemon{
		Config: cfg,
		Log:    log.With("service", "daemon"),
		Store:  store,
		Awards: awards,
		events: events.Nop{},
	}

	dataDir := ""
	if cfg.Store.Driver == DriverSQLite {
		dataDir = cfg.Store.Dir
	}
	d.Health = health.NewChecker(store, dataDir, log)

	// Award events
	if cfg.Events.RedisAddr != "" {
		pub, err := events.NewRedisPublisher(ctx, cfg.Events.RedisAddr, cfg.Events.Channel, log)
		if err != nil {
			d.Log.Warn("award events disabled", "redis_addr", cfg.Events.RedisAddr, "error", err)
		} else {
			guarded := events.NewGuarded(pub, healing.New("events", healing.Config{
				FailureThreshold: cfg.Events.BreakerFailures,
				ResetTimeout:     parseDuration(cfg.Events.BreakerReset, 0),
			}), parseDuration(cfg.Events.PublishTimeout, 0))
			d.events = guarded
			awards.SetPublisher(guarded)
			d.Health.AddCheck(health.Check{Name: "events", CheckFn: pub.Ping})
			d.Health.AddCheck(health.Check{Name: "events_breaker", CheckFn: guarded.Breaker().Check})
		}
	}

	// Scheduled reconciliation
	d.Jobs = scheduler.New(log)
	if cfg.Reconcile.Interval != "" {
		rec := engagement.NewReconciler(store, log)
		if err := d.Jobs.Every(parseDuration(cfg.Reconcile.Interval, time.Hour), "reconcile", rec.Run); err != nil {
			d.Close()
			return nil, err
		}
	}

	// API server
	d.Server = api.NewServer(awards, log)
	d.Server.SetHealth(d.Health)
	d.Server.SetTimeout(parseDuration(cfg.API.Timeout, 30*time.Second))
	if cfg.Telemetry.Prometheus {
		d.Server.EnableMetrics()
	}

	return d, nil
}

// OpenStore opens the configured progress store.
func OpenStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Store.Driver {
	case DriverPostgres:
		s, err := postgres.Open(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return s, nil
	case DriverSQLite, "":
		dir := cfg.Store.Dir
		if dir == "" {
			dir = fluentiaHome()
		}
		db, err := sqlite.Open(dir)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", domain.ErrInvalidArgument, cfg.Store.Driver)
	}
}

// BuildOrchestrator wires the award path from cfg over store.
func BuildOrchestrator(cfg Config, store Store, log *logger.Logger) (*engagement.Orchestrator, error) {
	catalog, err := loadCatalog(cfg.Badges.Catalog)
	if err != nil {
		return nil, fmt.Errorf("load badge catalog: %w", err)
	}
	awards := engagement.NewOrchestrator(store, cfg.Curve(), cfg.XP, catalog, log)
	if cfg.Notifications.Enabled {
		awards.SetNotifications(engagement.NewNotificationServiceWithPolicy(store, cfg.NotificationPolicy()))
	}
	return awards, nil
}

func loadCatalog(path string) ([]domain.BadgeDefinition, error) {
	if path == "" {
		return engagement.DefaultCatalog()
	}
	return engagement.LoadCatalog(path)
}

// Addr returns the API listen address.
func (d *Daemon) Addr() string {
	return net.JoinHostPort(d.Config.API.Host, strconv.Itoa(d.Config.API.Port))
}

// Serve starts the HTTP server and background jobs, and blocks until ctx
// is cancelled or the process receives SIGINT or SIGTERM.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	httpServer := &http.Server{
		Addr:         d.Addr(),
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.Health.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return d.Jobs.Run(ctx)
	})
	g.Go(func() error {
		d.Log.Info("serving", "addr", httpServer.Addr,
			"store", d.Config.Store.Driver, "metrics", d.Config.Telemetry.Prometheus)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		d.Log.Info("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	d.Close()
	return err
}

// Close shuts down all daemon resources. It is safe to call more than once.
func (d *Daemon) Close() {
	d.closed.Do(d.close)
}

func (d *Daemon) close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Jobs != nil {
		d.Jobs.Stop()
	}
	if d.events != nil {
		_ = d.events.Close()
	}
	if d.Store != nil {
		_ = d.Store.Close()
	}
	if d.Log != nil {
		d.Log.Sync()
	}
}
