package reactive

import "sync"

// Dispatcher runs state mutations on a single logical thread. Dispatch
// reports false when fn was refused and will never run.
type Dispatcher interface {
	Dispatch(fn func()) bool
}

// Queue is a Dispatcher backed by one goroutine.
// Tasks run one at a time in dispatch order. Dispatch never blocks: the
// backlog is unbounded so a slow consumer cannot stall a producer.
type Queue struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
}

func NewQueue() *Queue {
	q := &Queue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// Dispatch schedules fn. It returns false, dropping fn, once the queue is
// closed.
func (q *Queue) Dispatch(fn func()) bool {
	return q.enqueue(fn)
}

func (q *Queue) enqueue(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Flush blocks until every task dispatched before the call has run.
// It must not be called from a task on the same queue.
func (q *Queue) Flush() {
	done := make(chan struct{})
	if !q.enqueue(func() { close(done) }) {
		return
	}
	<-done
}

// Close drains pending tasks and stops the goroutine.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.wake
			continue
		}
		batch := q.tasks
		q.tasks = nil
		q.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
	}
}
