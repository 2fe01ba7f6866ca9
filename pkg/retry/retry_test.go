package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPolicyDoSucceedsAfterTransientFailures(t *testing.T) {
	policy := Policy{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestPolicyDoStopsOnNonRetryable(t *testing.T) {
	permanent := errors.New("permanent")
	policy := Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		Retryable:   func(err error) bool { return !errors.Is(err, permanent) },
	}
	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return permanent
	})
	require.ErrorIs(t, err, permanent)
	require.Equal(t, 1, calls)
}

func TestPolicyDoExhaustsAttempts(t *testing.T) {
	transient := errors.New("busy")
	policy := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return transient
	})
	require.ErrorIs(t, err, transient)
	require.Equal(t, 3, calls)
}

func TestPolicyDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond}
	calls := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- policy.Do(ctx, func(ctx context.Context) error {
			calls++
			return errors.New("busy")
		})
	}()
	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("retry loop did not observe cancellation")
	}
}

func TestPolicyDelayMonotonicUntilCap(t *testing.T) {
	policy := Policy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond, MaxDelay: 40 * time.Millisecond, JitterFraction: 0}
	require.Equal(t, 10*time.Millisecond, policy.Delay(0))
	require.Equal(t, 20*time.Millisecond, policy.Delay(1))
	require.Equal(t, 40*time.Millisecond, policy.Delay(2))
	require.Equal(t, 40*time.Millisecond, policy.Delay(3))
}
