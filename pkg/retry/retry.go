package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy describes a bounded exponential backoff with jitter. The same
// policy instance is shared by lock acquisition and idempotent writes
// so retry behaviour stays consistent across call sites.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	JitterFraction float64
	// Retryable decides whether an error is transient. A nil predicate
	// retries every error.
	Retryable func(error) bool
}

// Default returns the policy used when none is configured.
func Default() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      100 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		JitterFraction: 0.2,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.JitterFraction < 0 || p.JitterFraction > 1 {
		p.JitterFraction = 0.2
	}
	return p
}

// Delay computes the backoff delay for a zero-based attempt index.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	delay := p.BaseDelay << uint(attempt)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	if p.JitterFraction > 0 {
		jitter := time.Duration(rand.Int63n(int64(float64(delay)*p.JitterFraction) + 1))
		delay += jitter
	}
	return delay
}

// Do invokes fn until it succeeds, the attempts are exhausted, the
// error is not retryable, or the context is cancelled. The last error
// is returned.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p = p.normalized()
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts-1 {
			break
		}
		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
