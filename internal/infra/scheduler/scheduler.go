// Package scheduler runs periodic background jobs such as ledger
// reconciliation on a gocron scheduler in UTC.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/fluentia/fluentia/internal/pkg/logger"
)

// Job is one unit of scheduled work. It receives the scheduler's context.
type Job func(ctx context.Context)

// Scheduler manages scheduled jobs for the daemon.
type Scheduler struct {
	scheduler *gocron.Scheduler
	log       *logger.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a scheduler. Jobs are added with Every and begin on Start.
func New(log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		log:       log.With("service", "scheduler"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Every registers job to run every interval. A run that is still going
// when the next one is due is skipped, not queued.
func (s *Scheduler) Every(interval time.Duration, name string, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("schedule %s: interval must be positive, got %s", name, interval)
	}
	_, err := s.scheduler.Every(interval).Tag(name).SingletonMode().Do(func() {
		start := time.Now()
		job(s.ctx)
		s.log.Debug("job finished", "job", name, "took", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.log.Info("job scheduled", "job", name, "interval", interval)
	return nil
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	return s.scheduler.Len()
}

// Start begins running all scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop terminates all scheduled jobs.
func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	s.Stop()
	return nil
}
