package reactive

import (
	"context"
	"sync"
)

// Task is the handle of an asynchronous operation. Callers may wait on it,
// the presentation layer usually ignores it.
type Task struct {
	done chan struct{}
	once sync.Once
	err  error
}

// NewTask returns a pending task and the func that resolves it.
// Only the first resolve call has an effect.
func NewTask() (*Task, func(error)) {
	t := &Task{done: make(chan struct{})}
	return t, t.resolve
}

// Go runs fn in a new goroutine and resolves the task with its result.
func Go(fn func() error) *Task {
	t, resolve := NewTask()
	go func() {
		resolve(fn())
	}()
	return t
}

// Failed returns an already resolved task.
func Failed(err error) *Task {
	t, resolve := NewTask()
	resolve(err)
	return t
}

func (t *Task) resolve(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

// Done is closed once the task has resolved.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the result, or nil while the task is still pending.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the task resolves or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
