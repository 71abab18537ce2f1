package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisStateKey = "homepage:state"

// RedisStateBackend keeps the snapshot as a single JSON string value.
type RedisStateBackend struct {
	client *redis.Client
	key    string
}

func NewRedisStateBackend(redisURL string) (StateBackend, error) {
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
	return NewRedisStateBackendWithClient(client), nil
}

func NewRedisStateBackendWithClient(client *redis.Client) *RedisStateBackend {
	return &RedisStateBackend{client: client, key: redisStateKey}
}

func (b *RedisStateBackend) Load() (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), backendOperationTimeout)
	defer cancel()
	data, err := b.client.Get(ctx, b.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(data)
}

func (b *RedisStateBackend) Save(state *Snapshot) error {
	if state == nil {
		return nil
	}
	payload, err := encodeSnapshot(state)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), backendOperationTimeout)
	defer cancel()
	return b.client.Set(ctx, b.key, payload, 0).Err()
}

func (b *RedisStateBackend) Close() error {
	return b.client.Close()
}
