package lock

import (
	"context"
	"sync"
	"time"
)

type lease struct {
	token     string
	expiresAt time.Time
}

// MemoryManager is an in-process Manager with the same lease semantics
// as the Redis implementation. It backs tests and single-node
// deployments where no shared store is configured.
type MemoryManager struct {
	mu           sync.Mutex
	leases       map[string]lease
	pollInterval time.Duration
}

// NewMemoryManager builds an in-memory lock manager.
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{
		leases:       make(map[string]lease),
		pollInterval: 5 * time.Millisecond,
	}
}

// Acquire polls the lease table until it wins or wait elapses.
func (m *MemoryManager) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (*Handle, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(wait)
	for {
		if m.tryAcquire(key, token, ttl) {
			return &Handle{Key: key, Token: token, AcquiredAt: time.Now().UTC(), TTL: ttl}, nil
		}
		if wait <= 0 || time.Now().After(deadline) {
			return nil, ErrNotAcquired
		}
		timer := time.NewTimer(m.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (m *MemoryManager) tryAcquire(key, token string, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if held, ok := m.leases[key]; ok && now.Before(held.expiresAt) {
		return false
	}
	m.leases[key] = lease{token: token, expiresAt: now.Add(ttl)}
	return true
}

// Release frees the lease when the token still matches.
func (m *MemoryManager) Release(ctx context.Context, handle *Handle) error {
	if handle == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	held, ok := m.leases[handle.Key]
	if !ok || held.token != handle.Token || time.Now().After(held.expiresAt) {
		return ErrNotHeld
	}
	delete(m.leases, handle.Key)
	return nil
}
