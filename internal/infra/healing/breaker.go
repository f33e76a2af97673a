// Package healing keeps optional dependencies from slowing the award path.
// A Breaker stops calling a failing dependency for a cool-down period,
// then lets a few probe calls through before closing again.
//
//	closed    --failures reach threshold-->  open
//	open      --reset timeout elapses----->  half-open
//	half-open --probes succeed------------>  closed
//	half-open --any failure--------------->  open
package healing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned by Do while the breaker is open.
var ErrOpen = errors.New("circuit breaker open")

// State is the breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config configures a Breaker.
type Config struct {
	FailureThreshold int           // consecutive failures that trip the breaker
	ResetTimeout     time.Duration // time spent open before probing
	HalfOpenProbes   int           // successful probes needed to close
}

// DefaultConfig returns the defaults used for the event bus.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenProbes:   1,
	}
}

// Breaker is a circuit breaker. Safe for concurrent use.
type Breaker struct {
	mu        sync.Mutex
	name      string
	cfg       Config
	state     State
	failures  int
	admitted  int // half-open calls let through
	passed    int // half-open calls that succeeded
	trippedAt time.Time
	trips     int
	now       func() time.Time
}

// New creates a closed breaker. Zero config fields take the defaults.
func New(name string, cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = def.HalfOpenProbes
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now}
}

// SetClock replaces the time source. Used by tests.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
}

// Do runs fn unless the breaker is open, and records its outcome.
// While half-open at most HalfOpenProbes calls are let through at once.
// Context cancellation by the caller is not counted as a failure.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	gen, probe, err := b.allow()
	if err != nil {
		return err
	}
	err = fn(ctx)
	switch {
	case err == nil:
		b.success(gen, probe)
	case ctx.Err() != nil:
		if probe {
			b.release(gen)
		}
	default:
		b.failure()
	}
	return err
}

// allow admits a call. probe reports whether it took a half-open slot in
// trip generation gen.
func (b *Breaker) allow() (gen int, probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	switch b.state {
	case Open:
		return 0, false, fmt.Errorf("%s: %w", b.name, ErrOpen)
	case HalfOpen:
		if b.admitted >= b.cfg.HalfOpenProbes {
			return 0, false, fmt.Errorf("%s: %w", b.name, ErrOpen)
		}
		b.admitted++
		return b.trips, true, nil
	}
	return b.trips, false, nil
}

// release frees a half-open slot taken by a call that neither passed nor failed.
func (b *Breaker) release(gen int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == HalfOpen && b.trips == gen && b.admitted > 0 {
		b.admitted--
	}
}

// advance moves open to half-open once the reset timeout has elapsed.
// Callers hold mu.
func (b *Breaker) advance() {
	if b.state == Open && b.now().Sub(b.trippedAt) >= b.cfg.ResetTimeout {
		b.state = HalfOpen
		b.admitted = 0
		b.passed = 0
	}
}

// success counts a half-open pass only for a probe of the current generation.
func (b *Breaker) success(gen int, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case HalfOpen:
		if !probe || gen != b.trips {
			return
		}
		b.passed++
		if b.passed >= b.cfg.HalfOpenProbes {
			b.state = Closed
			b.failures = 0
		}
	case Closed:
		b.failures = 0
	}
}

func (b *Breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.trip()
		}
	case HalfOpen:
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.state = Open
	b.trippedAt = b.now()
	b.trips++
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	return b.state
}

// Trips returns how many times the breaker has opened.
func (b *Breaker) Trips() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trips
}

// Check reports an error while the breaker is open. It fits health.Check.
func (b *Breaker) Check(context.Context) error {
	if b.State() == Open {
		return fmt.Errorf("%s: %w", b.name, ErrOpen)
	}
	return nil
}
