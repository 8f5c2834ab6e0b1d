package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisFeed stores per-creator versions as counters so every replica sees the same value.
type RedisFeed struct {
	client *redis.Client
	prefix string
}

func NewRedisFeed(redisURL string) (*RedisFeed, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisFeedWithClient(client), nil
}

func NewRedisFeedWithClient(client *redis.Client) *RedisFeed {
	return &RedisFeed{client: client, prefix: "canvass:feed:"}
}

func (f *RedisFeed) key(creatorID string) string {
	return f.prefix + creatorID
}

func (f *RedisFeed) Publish(ctx context.Context, ev Event) error {
	if ev.CreatorID == "" {
		return nil
	}
	if err := f.client.Incr(ctx, f.key(ev.CreatorID)).Err(); err != nil {
		return fmt.Errorf("bump feed version: %w", err)
	}
	return nil
}

func (f *RedisFeed) Version(ctx context.Context, creatorID string) (int64, error) {
	v, err := f.client.Get(ctx, f.key(creatorID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read feed version: %w", err)
	}
	return v, nil
}

func (f *RedisFeed) Ping(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}

func (f *RedisFeed) Close() error {
	return f.client.Close()
}
