package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/example/hall-allocation/internal/application"
)

// RedisStreamNotifier appends each notification to a Redis stream with XADD.
type RedisStreamNotifier struct {
	client *redis.Client
	stream string
	maxLen int64
}

// RedisOption configures a RedisStreamNotifier.
type RedisOption func(*RedisStreamNotifier)

// WithMaxLen caps the stream length approximately.
func WithMaxLen(n int64) RedisOption {
	return func(r *RedisStreamNotifier) {
		r.maxLen = n
	}
}

// NewRedisClient opens a client for addr. The connection is lazy.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisStreamNotifier publishes to stream using client.
func NewRedisStreamNotifier(client *redis.Client, stream string, opts ...RedisOption) *RedisStreamNotifier {
	n := &RedisStreamNotifier{client: client, stream: stream}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Ping checks the Redis connection.
func (n *RedisStreamNotifier) Ping(ctx context.Context) error {
	return n.client.Ping(ctx).Err()
}

// Notify implements application.Notifier.
func (n *RedisStreamNotifier) Notify(ctx context.Context, notification application.Notification) error {
	if n == nil || n.client == nil {
		return fmt.Errorf("redis notifier not configured")
	}

	payload, err := json.Marshal(notification.Payload)
	if err != nil {
		return fmt.Errorf("encode notification payload: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]interface{}{
			"student_id":  notification.StudentID,
			"kind":        string(notification.Kind),
			"payload":     string(payload),
			"occurred_at": notification.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}
	if n.maxLen > 0 {
		args.MaxLen = n.maxLen
		args.Approx = true
	}

	if err := n.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("publish to stream %s: %w", n.stream, err)
	}
	return nil
}
