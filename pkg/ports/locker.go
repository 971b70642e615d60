package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker provides per-identity concurrency control for create calls.
// Two concurrent creates for the same therapist race on the existence check; a
// locker serializes them so only one session is ever created per identity.
type DistributedLocker interface {
	// Lock attempts to acquire a lock for the given key (e.g. a therapist
	// identity). It blocks until the lock is acquired, the context is canceled,
	// or the TTL expires (implementation specific).
	// Returns an UnlockFunc that MUST be called to release the lock.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
