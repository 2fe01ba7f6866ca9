package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sentraops/siteops-api/pkg/retry"
)

// Task is one unit of deferred work, e.g. delivering an escalation
// ticket after an approval decision.
type Task struct {
	ID         string
	Kind       string
	Payload    interface{}
	EnqueuedAt time.Time
}

// Handler executes a task. A returned error triggers the queue's retry
// policy.
type Handler func(context.Context, Task) error

// Options tunes the worker pool.
type Options struct {
	Workers int
	Buffer  int
	Retry   retry.Policy
	Logger  *zap.Logger
}

// Queue dispatches tasks to a fixed pool of workers. Tasks are held in
// memory only; anything that must survive a restart belongs in the
// database, not here.
type Queue struct {
	name    string
	handler Handler
	policy  retry.Policy
	logger  *zap.Logger

	tasks   chan Task
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	workers int

	mu      sync.Mutex
	started bool
}

// NewQueue builds a queue for the given handler.
func NewQueue(name string, handler Handler, opts Options) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Buffer <= 0 {
		opts.Buffer = opts.Workers * 4
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.Default()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Queue{
		name:    name,
		handler: handler,
		policy:  opts.Retry,
		logger:  opts.Logger,
		workers: opts.Workers,
		tasks:   make(chan Task, opts.Buffer),
	}
}

// Start launches the workers. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.started = true
	q.logger.Info("queue started", zap.String("queue", q.name), zap.Int("workers", q.workers))
}

// Stop cancels the workers and waits for them to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Info("queue stopped", zap.String("queue", q.name))
}

// Enqueue pushes a task onto the queue, blocking while the buffer is
// full.
func (q *Queue) Enqueue(task Task) error {
	q.mu.Lock()
	ctx := q.ctx
	started := q.started
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("queue %s not started", q.name)
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("queue %s stopped: %w", q.name, ctx.Err())
	case q.tasks <- task:
		return nil
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case task := <-q.tasks:
			err := q.policy.Do(q.ctx, func(ctx context.Context) error {
				return q.handler(ctx, task)
			})
			if err != nil {
				q.logger.Error("task failed",
					zap.String("queue", q.name),
					zap.String("task_id", task.ID),
					zap.String("kind", task.Kind),
					zap.Error(err))
			}
		}
	}
}
