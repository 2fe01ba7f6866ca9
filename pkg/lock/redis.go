package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only when the stored token matches,
// so a stale holder never frees a lease re-acquired by someone else.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

// RedisManager implements Manager on a shared Redis instance, visible
// to every process replica.
type RedisManager struct {
	client       *redis.Client
	pollInterval time.Duration
}

// NewRedisManager builds a Redis-backed lock manager.
func NewRedisManager(client *redis.Client, pollInterval time.Duration) *RedisManager {
	if pollInterval <= 0 {
		pollInterval = 25 * time.Millisecond
	}
	return &RedisManager{client: client, pollInterval: pollInterval}
}

// Acquire attempts SET NX PX until it wins or wait elapses.
func (m *RedisManager) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (*Handle, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lock: ttl must be positive")
	}
	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("lock: generate token: %w", err)
	}

	deadline := time.Now().Add(wait)
	for {
		ok, err := m.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock: setnx %s: %w", key, err)
		}
		if ok {
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

// Release frees the lease if it is still owned by the handle's token.
func (m *RedisManager) Release(ctx context.Context, handle *Handle) error {
	if handle == nil {
		return nil
	}
	res, err := m.client.Eval(ctx, releaseScript, []string{handle.Key}, handle.Token).Int64()
	if err != nil {
		return fmt.Errorf("lock: release %s: %w", handle.Key, err)
	}
	if res == 0 {
		return ErrNotHeld
	}
	return nil
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
