package lock

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process lock provider for single-node deployments and
// tests. Locks are scoped per key; the hold lease is enforced by a deadline
// on the context passed to fn.
type Memory struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewMemory creates an in-process lock provider.
func NewMemory() *Memory {
	return &Memory{locks: make(map[string]chan struct{})}
}

// TryUsing attempts to acquire the named lock within acquireTimeout and runs
// fn while holding it.
func (m *Memory) TryUsing(ctx context.Context, key string, hold, acquireTimeout time.Duration, fn func(ctx context.Context) error) (bool, error) {
	ch := m.channel(key)

	acquireCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()

	select {
	case ch <- struct{}{}:
	case <-acquireCtx.Done():
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	defer func() { <-ch }()

	holdCtx, cancelHold := context.WithTimeout(ctx, hold)
	defer cancelHold()

	return true, fn(holdCtx)
}

// channel returns the buffered semaphore channel for key, creating it once.
func (m *Memory) channel(key string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		m.locks[key] = ch
	}
	return ch
}

// Ensure Memory implements Provider at compile time.
var _ Provider = (*Memory)(nil)
