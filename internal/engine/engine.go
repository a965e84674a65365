package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Loop is the single-writer main execution context.
//
// Thread-safety model:
//   - Post(), Do(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//
// A task that panics is recovered and reported as a *TaskError, except for
// panics whose value reports Fatal() == true, which are re-raised.
type Loop struct {
	queue   *taskQueue
	logger  *slog.Logger
	running atomic.Bool
	done    atomic.Uint64
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLogger sets the logger used by the loop. Default: slog.Default().
func WithLogger(l *slog.Logger) LoopOption {
	return func(lp *Loop) {
		if l != nil {
			lp.logger = l
		}
	}
}

// NewLoop creates a loop. Nothing runs until Run is called.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		queue:  newTaskQueue(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type loopKey struct{}

// OnLoop reports whether ctx belongs to a task running on l.
func (l *Loop) OnLoop(ctx context.Context) bool {
	owner, _ := ctx.Value(loopKey{}).(*Loop)
	return owner == l
}

// Post queues fn without waiting for it. Returns false once the loop is stopped.
func (l *Loop) Post(name string, fn func(ctx context.Context) error) bool {
	return l.queue.Enqueue(Task{Name: name, Fn: fn})
}

// Do runs fn on the loop and waits for it to finish.
//
// When ctx already belongs to this loop (a task calling Do), fn runs inline
// instead of deadlocking on itself. Returns ctx.Err() if the caller gives up
// before the task runs; the task itself is not cancelled.
func (l *Loop) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if l.OnLoop(ctx) {
		return l.execute(ctx, Task{Name: name, Fn: fn})
	}

	done := make(chan error, 1)
	if !l.queue.Enqueue(Task{Name: name, Fn: fn, done: done}) {
		return ErrStopped
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes queued tasks until ctx is cancelled or Stop is called.
// After Stop, tasks already queued are still executed before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("main loop already running")
	}
	defer l.running.Store(false)

	taskCtx := context.WithValue(ctx, loopKey{}, l)
	l.logger.Debug("main loop starting")

	for {
		if t, ok := l.queue.TryDequeue(); ok {
			l.finish(t, l.execute(taskCtx, t))
			continue
		}

		select {
		case <-ctx.Done():
			l.logger.Debug("main loop stopping: context cancelled")
			l.queue.Close()
			for _, t := range l.queue.drain() {
				l.finish(t, ctx.Err())
			}
			return ctx.Err()

		case <-l.queue.Wait():
			// The signal channel is closed by Stop, so this fires
			// immediately once the queue is both closed and empty.
			if l.queue.Len() == 0 && l.closed() {
				l.logger.Debug("main loop stopping: queue closed")
				return nil
			}
		}
	}
}

func (l *Loop) closed() bool {
	l.queue.mu.Lock()
	defer l.queue.mu.Unlock()
	return l.queue.closed
}

// Stop closes the queue. Run drains what is left and returns.
func (l *Loop) Stop() {
	l.queue.Close()
}

// Len returns the number of tasks waiting to run.
func (l *Loop) Len() int {
	return l.queue.Len()
}

// Executed returns how many tasks have completed on the loop.
func (l *Loop) Executed() uint64 {
	return l.done.Load()
}

func (l *Loop) execute(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if f, ok := r.(interface{ Fatal() bool }); ok && f.Fatal() {
				panic(r)
			}
			perr, ok := r.(error)
			if !ok {
				perr = fmt.Errorf("%v", r)
			}
			err = &TaskError{Task: t.Name, Err: perr, Panicked: true}
		}
	}()

	if err := t.Fn(ctx); err != nil {
		return &TaskError{Task: t.Name, Err: err}
	}
	return nil
}

func (l *Loop) finish(t Task, err error) {
	l.done.Add(1)
	if t.done != nil {
		t.done <- err
		return
	}
	if err != nil {
		l.logger.Error("main loop task failed",
			"task", t.Name,
			"error", err,
		)
	}
}
