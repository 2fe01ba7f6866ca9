package lock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotAcquired is returned when the blocking timeout elapses before
// the lock becomes available.
var ErrNotAcquired = errors.New("lock: not acquired within blocking timeout")

// ErrNotHeld is returned when releasing a lease that has expired or is
// held by another owner.
var ErrNotHeld = errors.New("lock: lease not held")

// Handle identifies an acquired lease. The token is compared on
// release so a holder whose lease expired cannot free a successor's.
type Handle struct {
	Key        string
	Token      string
	AcquiredAt time.Time
	TTL        time.Duration
}

// Manager serializes operations on a named resource across process
// instances.
type Manager interface {
	// Acquire blocks up to wait for the lease identified by key. The
	// lease auto-expires after ttl so a crashed holder cannot deadlock
	// its peers.
	Acquire(ctx context.Context, key string, ttl, wait time.Duration) (*Handle, error)
	Release(ctx context.Context, handle *Handle) error
}

// Key derives the lock name for an entity. Operations on the same
// entity serialize; distinct entities proceed in parallel.
func Key(kind, id string) string {
	return fmt.Sprintf("lock:%s:%s", kind, id)
}
