package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestEvery_RejectsNonPositive(t *testing.T) {
	s := New(nil)
	if err := s.Every(0, "bad", func(context.Context) {}); err == nil {
		t.Error("expected error for zero interval")
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestRun_ExecutesJobsUntilCancelled(t *testing.T) {
	s := New(nil)
	var runs atomic.Int32
	if err := s.Every(20*time.Millisecond, "tick", func(context.Context) { runs.Add(1) }); err != nil {
		t.Fatalf("Every() error: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("job never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStop_CancelsJobContext(t *testing.T) {
	s := New(nil)
	s.Stop()
	select {
	case <-s.ctx.Done():
	default:
		t.Error("job context should be cancelled after Stop")
	}
}
