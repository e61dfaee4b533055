// Package cache provides a read-through cache client used by the repositories
// for point reads of organizations, projects, and stacks.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is not cached.
var ErrMiss = errors.New("cache miss")

// Client is a byte-oriented cache with TTL expiry. Values are JSON-encoded by
// callers; the repositories wrap Get/Set with typed helpers.
type Client interface {
	// Get returns the cached value for key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key for ttl. A ttl of zero uses the client's
	// default expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// StackingVersion tags stack cache keys so a change to the stacking algorithm
// invalidates previously cached lookups.
const StackingVersion = "v2"

// StackBySignatureKey builds the cache key for a (project, signature hash)
// stack lookup.
func StackBySignatureKey(projectID, signatureHash string) string {
	return StackingVersion + ":stack:sig:" + projectID + ":" + signatureHash
}

// StackByIDKey builds the cache key for a stack point read.
func StackByIDKey(id string) string {
	return StackingVersion + ":stack:id:" + id
}

// OrganizationKey builds the cache key for an organization point read.
func OrganizationKey(id string) string {
	return "org:" + id
}

// ProjectKey builds the cache key for a project point read.
func ProjectKey(id string) string {
	return "project:" + id
}
