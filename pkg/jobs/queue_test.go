package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sentraops/siteops-api/pkg/retry"
)

func TestQueueProcessesTasks(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]bool)
	done := make(chan struct{}, 3)

	q := NewQueue("test", func(_ context.Context, task Task) error {
		mu.Lock()
		seen[task.ID] = true
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, Options{Workers: 2})

	q.Start(context.Background())
	defer q.Stop()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(Task{ID: id, Kind: "noop"}))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for tasks")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
}

func TestQueueRetriesTransientFailures(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})

	policy := retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	q := NewQueue("retry", func(_ context.Context, _ Task) error {
		mu.Lock()
		attempts++
		current := attempts
		mu.Unlock()
		if current < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, Options{Workers: 1, Retry: policy})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Task{ID: "t-1", Kind: "flaky"}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never succeeded")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 3, attempts)
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Task) error { return nil }, Options{})
	require.Error(t, q.Enqueue(Task{ID: "x"}))
}
