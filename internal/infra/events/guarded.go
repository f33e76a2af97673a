package events

import (
	"context"
	"time"

	"github.com/fluentia/fluentia/internal/domain"
	"github.com/fluentia/fluentia/internal/infra/healing"
)

var _ domain.EventPublisher = (*Guarded)(nil)

// Guarded bounds each publish by a timeout and stops publishing through a
// circuit breaker while the bus keeps failing. Events dropped while the
// breaker is open are not replayed.
type Guarded struct {
	next    domain.EventPublisher
	breaker *healing.Breaker
	timeout time.Duration
}

// NewGuarded wraps next. A zero timeout means two seconds.
func NewGuarded(next domain.EventPublisher, breaker *healing.Breaker, timeout time.Duration) *Guarded {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Guarded{next: next, breaker: breaker, timeout: timeout}
}

// Breaker returns the breaker guarding the publisher.
func (g *Guarded) Breaker() *healing.Breaker { return g.breaker }

func (g *Guarded) Publish(ctx context.Context, ev domain.AwardEvent) error {
	return g.breaker.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.next.Publish(ctx, ev)
	})
}

func (g *Guarded) Close() error { return g.next.Close() }
