// Package redis implements the medium interface for Redis.
//
// Redis acknowledges a SET once it is applied in memory; durability of the key material depends on the server running
// with appendonly yes and appendfsync always.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tarancss/walletboot/lib/store"
)

// Prefix namespaces the keys written by the medium.
const Prefix = "walletboot:"

// Redis implements a connection to a Redis server.
type Redis struct {
	c *redis.Client
}

// New returns a Redis client connected to the server at url (ie. redis://localhost:6379/0).
func New(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	c := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()

	if err = c.Ping(ctx).Err(); err != nil {
		_ = c.Close()

		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Redis{c: c}, nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.c.Close()
}

// Get loads the value saved under key.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.c.Get(ctx, Prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrDataNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("could not read %s from redis: %w", key, err)
	}

	return v, nil
}

// Set saves value under key with no expiration.
func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.c.Set(ctx, Prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("could not save %s in redis: %w", key, err)
	}

	return nil
}

// Exists reports whether key is present.
func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.c.Exists(ctx, Prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("could not check %s in redis: %w", key, err)
	}

	return n > 0, nil
}
