package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fiberfriends/companion-engine/internal/infrastructure/messaging"
)

// PubSub adapts a Redis client to messaging.RedisClient.
type PubSub struct {
	client redis.UniversalClient
}

// NewPubSub creates a PubSub sharing the cache's connection pool.
func NewPubSub(cache *Cache) *PubSub {
	return &PubSub{client: cache.Client()}
}

var _ messaging.RedisClient = (*PubSub)(nil)

// Publish sends message to channel. Strings and byte slices go out as-is,
// anything else is JSON encoded.
func (p *PubSub) Publish(ctx context.Context, channel string, message interface{}) error {
	if channel == "" {
		return ErrCacheKeyEmpty
	}
	switch message.(type) {
	case string, []byte:
	default:
		data, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
		}
		message = data
	}
	return p.client.Publish(ctx, channel, message).Err()
}

// Subscribe listens on channels until ctx is done. The returned channel is
// closed when the subscription ends.
func (p *PubSub) Subscribe(ctx context.Context, channels ...string) (<-chan messaging.RedisMessage, error) {
	sub := p.client.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan messaging.RedisMessage, 64)
	go func() {
		defer close(out)
		defer sub.Close()

		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- messaging.RedisMessage{Channel: msg.Channel, Payload: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close is a no-op; the connection belongs to the Cache.
func (p *PubSub) Close() error {
	return nil
}
