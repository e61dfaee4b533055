package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Channel is the pub/sub channel entity changes are published on.
const Channel = "faultline:entity-changed"

// RedisPublisher publishes entity changes over Redis pub/sub so listeners in
// other processes observe them.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher creates a Redis-backed publisher.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// PublishEntityChanged publishes the change as JSON. Publishing to a channel
// with no subscribers is not an error.
func (p *RedisPublisher) PublishEntityChanged(ctx context.Context, change EntityChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encoding entity change: %w", err)
	}
	if err := p.client.Publish(ctx, Channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing entity change: %w", err)
	}
	return nil
}

// Ensure RedisPublisher implements Publisher at compile time.
var _ Publisher = (*RedisPublisher)(nil)
