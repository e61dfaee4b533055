// Package lock provides scoped distributed locks used to serialize stack
// creation per fingerprint across concurrent pipeline invocations.
package lock

import (
	"context"
	"time"
)

// Provider acquires named locks with a bounded hold lease.
type Provider interface {
	// TryUsing attempts to acquire the named lock within acquireTimeout and,
	// on success, runs fn while holding it. The lock is released when fn
	// returns; hold bounds the lease so a crashed holder cannot block others
	// indefinitely. Returns false (without error) if the lock could not be
	// acquired in time; fn's error is returned as-is.
	TryUsing(ctx context.Context, key string, hold, acquireTimeout time.Duration, fn func(ctx context.Context) error) (bool, error)
}

// StackCreationKey builds the lock key guarding creation of a new stack for
// a project fingerprint.
func StackCreationKey(projectID, signatureHash string) string {
	return "stack:create:" + projectID + ":" + signatureHash
}
