package backend

import (
	"context"
	"sync"
)

// mailbox is an unbounded FIFO between a producer that must never block and
// a consumer reading from a channel.
type mailbox[T any] struct {
	mu    sync.Mutex
	items []T
	wake  chan struct{}
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{wake: make(chan struct{}, 1)}
}

func (m *mailbox[T]) push(x T) {
	m.mu.Lock()
	m.items = append(m.items, x)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox[T]) pop() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	if len(m.items) == 0 {
		return zero, false
	}
	x := m.items[0]
	m.items[0] = zero
	m.items = m.items[1:]
	return x, true
}

// drain forwards items to out in order until ctx is done, then closes out.
func (m *mailbox[T]) drain(ctx context.Context, out chan<- T) {
	defer close(out)
	for {
		x, ok := m.pop()
		if !ok {
			select {
			case <-m.wake:
				continue
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- x:
		case <-ctx.Done():
			return
		}
	}
}
