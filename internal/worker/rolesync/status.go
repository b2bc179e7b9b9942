package rolesync

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
)

// StatusKey is the Redis key holding the latest scheduler status.
const StatusKey = "rolesync:scheduler"

// RedisStatusSink stores scheduler status snapshots in Redis.
type RedisStatusSink struct {
	client rueidis.Client
}

// NewRedisStatusSink creates a RedisStatusSink.
func NewRedisStatusSink(client rueidis.Client) *RedisStatusSink {
	return &RedisStatusSink{client: client}
}

// Publish stores the status.
func (r *RedisStatusSink) Publish(ctx context.Context, status Status) error {
	data, err := sonic.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal scheduler status: %w", err)
	}

	if err := r.client.Do(ctx, r.client.B().Set().Key(StatusKey).Value(string(data)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to store scheduler status: %w", err)
	}

	return nil
}

// Load returns the last published status, or nil when nothing was published.
func (r *RedisStatusSink) Load(ctx context.Context) (*Status, error) {
	data, err := r.client.Do(ctx, r.client.B().Get().Key(StatusKey).Build()).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to load scheduler status: %w", err)
	}

	var status Status
	if err := sonic.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scheduler status: %w", err)
	}

	return &status, nil
}
