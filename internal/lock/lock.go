// Package lock serializes work on a shared key, such as all billing writes
// for one subscription.
package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired is returned when the lock could not be taken before the
// context ended.
var ErrNotAcquired = errors.New("lock: not acquired")

// Locker hands out exclusive holds on a key.
type Locker interface {
	// Acquire blocks until the key is held or ctx is done. The returned
	// release func is safe to call more than once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}
