package healing

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func fail(context.Context) error { return errBoom }
func ok(context.Context) error   { return nil }

func newTestBreaker(t *testing.T) (*Breaker, *time.Time) {
	t.Helper()
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	b := New("events", Config{FailureThreshold: 3, ResetTimeout: 10 * time.Second, HalfOpenProbes: 2})
	b.SetClock(func() time.Time { return now })
	return b, &now
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Closed, "closed"},
		{Open, "open"},
		{HalfOpen, "half_open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Do(ctx, fail); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: got %v, want errBoom", i, err)
		}
	}
	if b.State() != Open {
		t.Fatalf("state = %v, want open", b.State())
	}

	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("got %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn must not run while open")
	}
	if b.Trips() != 1 {
		t.Errorf("trips = %d, want 1", b.Trips())
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(t)
	ctx := context.Background()

	b.Do(ctx, fail)
	b.Do(ctx, fail)
	b.Do(ctx, ok)
	b.Do(ctx, fail)
	if b.State() != Closed {
		t.Errorf("state = %v, want closed: failures are consecutive", b.State())
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b, now := newTestBreaker(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		b.Do(ctx, fail)
	}

	*now = now.Add(10 * time.Second)
	if b.State() != HalfOpen {
		t.Fatalf("state = %v, want half_open", b.State())
	}

	b.Do(ctx, ok)
	if b.State() != HalfOpen {
		t.Errorf("one probe of two should stay half_open, got %v", b.State())
	}
	b.Do(ctx, ok)
	if b.State() != Closed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		b.Do(ctx, fail)
	}
	*now = now.Add(11 * time.Second)

	b.Do(ctx, fail)
	if b.State() != Open {
		t.Errorf("state = %v, want open", b.State())
	}
	if b.Trips() != 2 {
		t.Errorf("trips = %d, want 2", b.Trips())
	}
	if err := b.Check(ctx); !errors.Is(err, ErrOpen) {
		t.Errorf("Check() = %v, want ErrOpen", err)
	}
}

func TestBreaker_CancelledCallerNotCounted(t *testing.T) {
	b, _ := newTestBreaker(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 5; i++ {
		b.Do(ctx, func(ctx context.Context) error { return ctx.Err() })
	}
	if b.State() != Closed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestNew_Defaults(t *testing.T) {
	b := New("x", Config{})
	if b.cfg != DefaultConfig() {
		t.Errorf("cfg = %+v, want defaults", b.cfg)
	}
}

func TestBreaker_HalfOpenLimitsConcurrentProbes(t *testing.T) {
	b, now := newTestBreaker(t) // two probes
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		b.Do(ctx, fail)
	}
	*now = now.Add(10 * time.Second)

	entered := make(chan struct{}, 2)
	proceed := make(chan struct{})
	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			done <- b.Do(ctx, func(context.Context) error {
				entered <- struct{}{}
				<-proceed
				return nil
			})
		}()
	}
	<-entered
	<-entered

	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("third half-open call = %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn must not run beyond the probe limit")
	}

	close(proceed)
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Errorf("probe error: %v", err)
		}
	}
	if b.State() != Closed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_CancelledProbeFreesSlot(t *testing.T) {
	b := New("events", Config{FailureThreshold: 1, ResetTimeout: time.Second, HalfOpenProbes: 1})
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	b.SetClock(func() time.Time { return now })
	b.Do(context.Background(), fail)
	now = now.Add(time.Second)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	b.Do(cancelled, func(ctx context.Context) error { return ctx.Err() })

	if err := b.Do(context.Background(), ok); err != nil {
		t.Fatalf("probe after a cancelled one = %v, want nil", err)
	}
	if b.State() != Closed {
		t.Errorf("state = %v, want closed", b.State())
	}
}
