// Package memory implements an in-process medium. It is meant for tests and throwaway demo runs: nothing survives
// the process.
package memory

import (
	"context"
	"sync"

	"github.com/tarancss/walletboot/lib/store"
)

// Memory implements store.Medium on a map.
type Memory struct {
	l      sync.RWMutex
	m      map[string][]byte
	closed bool
}

// New returns an empty Memory medium.
func New() *Memory {
	return &Memory{m: make(map[string][]byte)}
}

// Get returns a copy of the value saved under key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.l.RLock()
	defer m.l.RUnlock()

	if m.closed {
		return nil, store.ErrClosed
	}

	v, ok := m.m[key]
	if !ok {
		return nil, store.ErrDataNotFound
	}

	return append([]byte(nil), v...), nil
}

// Set saves a copy of value under key.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.l.Lock()
	defer m.l.Unlock()

	if m.closed {
		return store.ErrClosed
	}

	m.m[key] = append([]byte(nil), value...)

	return nil
}

// Exists reports whether key is present.
func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.l.RLock()
	defer m.l.RUnlock()

	if m.closed {
		return false, store.ErrClosed
	}

	_, ok := m.m[key]

	return ok, nil
}

// Close marks the medium as closed. Further calls fail with store.ErrClosed.
func (m *Memory) Close() error {
	m.l.Lock()
	defer m.l.Unlock()

	m.closed = true

	return nil
}
