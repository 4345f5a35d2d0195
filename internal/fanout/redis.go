package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus broadcasts envelopes over a single Redis pub/sub channel shared
// by all server processes. Every process, the origin included, receives
// every publish and filters down to its local subscribers.
type RedisBus struct {
	rdb     *redis.Client
	channel string
	logger  *slog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

var _ Bus = (*RedisBus)(nil)

func NewRedisBus(rdb *redis.Client, channel string, logger *slog.Logger) *RedisBus {
	return &RedisBus{
		rdb:     rdb,
		channel: channel,
		logger:  logger.With(slog.String("component", "fanout_redis")),
	}
}

func (b *RedisBus) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", b.channel, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, deliver DeliverFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		return fmt.Errorf("already subscribed to %s", b.channel)
	}

	pubsub := b.rdb.Subscribe(ctx, b.channel)
	// Force the subscription to be established before returning, so no
	// publish issued after Subscribe can be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}
	b.pubsub = pubsub
	b.done = make(chan struct{})

	go func() {
		defer close(b.done)
		for msg := range pubsub.Channel() {
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("Dropping malformed envelope", slog.Any("error", err))
				continue
			}
			deliver(env)
		}
	}()

	b.logger.Info("Subscribed to broadcast channel", slog.String("channel", b.channel))
	return nil
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	pubsub := b.pubsub
	done := b.done
	b.pubsub = nil
	b.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-done
	return err
}
