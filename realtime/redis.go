package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// =============================================================================
// REDIS - Pub/sub transport shared across instances
// =============================================================================

// Redis publishes and receives signals on one pub/sub channel. Message
// payloads are ignored.
type Redis struct {
	rdb     *redis.Client
	channel string
}

var (
	_ Subscriber = (*Redis)(nil)
	_ Publisher  = (*Redis)(nil)
)

func NewRedis(rdb *redis.Client, channel string) *Redis {
	if channel == "" {
		channel = "leave-calendar:changed"
	}
	return &Redis{rdb: rdb, channel: channel}
}

func (r *Redis) Publish(ctx context.Context) error {
	if err := r.rdb.Publish(ctx, r.channel, "changed").Err(); err != nil {
		return fmt.Errorf("failed to publish on %s: %w", r.channel, err)
	}
	return nil
}

// Subscribe confirms the subscription before returning, so a signal
// published afterwards is never missed.
func (r *Redis) Subscribe(ctx context.Context) (<-chan struct{}, error) {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				notify(out)
			}
		}
	}()
	return out, nil
}
