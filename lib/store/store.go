// Package store defines the interface for the persistence media holding the wallet key material.
//
// A Medium is a small key-value store. Implementations must make a Set durable before returning: key material is
// never written fire-and-forget.
package store

import (
	"context"
	"errors"
)

// Medium defines the methods required by the key material store.
type Medium interface {
	// Get returns the value saved under key or ErrDataNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set saves value under key, replacing any previous value, and returns once the write is durable.
	Set(ctx context.Context, key string, value []byte) error
	// Exists reports whether a value is saved under key.
	Exists(ctx context.Context, key string) (bool, error)
	// Close releases the connection to the medium.
	Close() error
}

// Errors returned
var (
	ErrDataNotFound = errors.New("data was not found in store")
	ErrClosed       = errors.New("store is closed")
)
