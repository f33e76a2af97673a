// Package events fans award events out to other processes.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fluentia/fluentia/internal/domain"
	"github.com/fluentia/fluentia/internal/pkg/logger"
)

// DefaultChannel is the pub/sub channel award events are published on.
const DefaultChannel = "fluentia:awards"

var (
	_ domain.EventPublisher = (*RedisPublisher)(nil)
	_ domain.EventPublisher = Nop{}
)

// Nop drops every event. Used when no event bus is configured.
type Nop struct{}

func (Nop) Publish(context.Context, domain.AwardEvent) error { return nil }
func (Nop) Close() error                                     { return nil }

// RedisPublisher publishes award events as JSON on a Redis channel.
type RedisPublisher struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// NewRedisPublisher connects to addr and verifies it with a ping.
func NewRedisPublisher(ctx context.Context, addr, channel string, log *logger.Logger) (*RedisPublisher, error) {
	if log == nil {
		log = logger.Nop()
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if strings.TrimSpace(channel) == "" {
		channel = DefaultChannel
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisPublisher{
		log:     log.With("service", "events"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

// Channel returns the channel events are published on.
func (p *RedisPublisher) Channel() string { return p.channel }

// Publish sends ev. Delivery is fire-and-forget; subscribers that are not
// connected miss it.
func (p *RedisPublisher) Publish(ctx context.Context, ev domain.AwardEvent) error {
	if p == nil || p.rdb == nil {
		return fmt.Errorf("redis publisher not initialized")
	}
	raw, err := Encode(ev)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, raw).Err()
}

// Subscribe delivers events from the channel to onEvent until ctx is done.
// It returns once the subscription is confirmed.
func (p *RedisPublisher) Subscribe(ctx context.Context, onEvent func(domain.AwardEvent)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}
	sub := p.rdb.Subscribe(ctx, p.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				ev, err := Decode([]byte(m.Payload))
				if err != nil {
					p.log.Warn("bad award event payload", "error", err)
					continue
				}
				onEvent(ev)
			}
		}
	}()
	return nil
}

// Ping checks the connection. Used by the health checker.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

func (p *RedisPublisher) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}

// Encode renders ev as the wire payload.
func Encode(ev domain.AwardEvent) ([]byte, error) {
	if ev.Badges == nil {
		ev.Badges = []domain.BadgeSummary{}
	}
	return json.Marshal(ev)
}

// Decode parses a wire payload.
func Decode(raw []byte) (domain.AwardEvent, error) {
	var ev domain.AwardEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return domain.AwardEvent{}, fmt.Errorf("decode award event: %w", err)
	}
	return ev, nil
}
