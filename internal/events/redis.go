package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"confhub/internal/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBridge fans change events out to other instances through a Redis
// channel. Local events are published to Redis, remote events are
// republished on the local bus.
type RedisBridge struct {
	client     redis.UniversalClient
	bus        Bus
	channel    string
	instanceID string
	buffer     int
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedisBridge creates a new Redis bridge
func NewRedisBridge(client redis.UniversalClient, bus Bus, channel string, buffer int, logger *zap.Logger) *RedisBridge {
	return &RedisBridge{
		client:     client,
		bus:        bus,
		channel:    channel,
		instanceID: uuid.NewString(),
		buffer:     buffer,
		logger:     logger.With(zap.String("component", "redis_bridge")),
	}
}

// InstanceID returns the origin stamped on events sent by this bridge
func (b *RedisBridge) InstanceID() string {
	return b.instanceID
}

// Start subscribes to the Redis channel and the local bus
func (b *RedisBridge) Start(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)

	// Wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to redis channel %s: %w", b.channel, err)
	}

	ctx, b.cancel = context.WithCancel(ctx)
	local := b.bus.Subscribe(b.buffer)

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		defer pubsub.Close()
		b.receive(ctx, pubsub.Channel())
	}()
	go func() {
		defer b.wg.Done()
		defer local.Close()
		b.forward(ctx, local)
	}()

	b.logger.Info("Redis bridge started",
		zap.String("channel", b.channel),
		zap.String("instance_id", b.instanceID))
	return nil
}

// Stop stops the bridge and waits for its goroutines
func (b *RedisBridge) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
}

// forward publishes locally committed events to Redis
func (b *RedisBridge) forward(ctx context.Context, sub *Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			if !event.IsLocal() {
				continue
			}
			event.Origin = b.instanceID

			payload, err := json.Marshal(event)
			if err != nil {
				b.logger.Error("Failed to encode change event", zap.Error(err))
				continue
			}
			if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
				metrics.EventsExported.WithLabelValues("redis", "error").Inc()
				b.logger.Error("Failed to publish change event to redis",
					zap.Error(err),
					zap.String("config", event.Name),
					zap.Int64("version", event.Version))
				continue
			}
			metrics.EventsExported.WithLabelValues("redis", "ok").Inc()
		}
	}
}

// receive republishes events from other instances on the local bus
func (b *RedisBridge) receive(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event ConfigChanged
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("Invalid change event on redis channel", zap.Error(err))
				continue
			}
			if event.Origin == "" || event.Origin == b.instanceID {
				continue
			}
			if err := b.bus.Publish(ctx, event); err != nil {
				b.logger.Error("Failed to republish remote change event", zap.Error(err))
			}
		}
	}
}
