// Package reactive holds the small publish/subscribe primitives the controllers
// are built from: a replaying value cell, a single-goroutine task queue and a
// future for fire-and-forget operations.
package reactive

import "sync"

// Update is one element of a live sequence: either a value or an error.
type Update[T any] struct {
	Value T
	Err   error
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// Value is a cell that broadcasts every Set to its subscribers.
//
// Subscribe replays the current value exactly once before any later Set is
// delivered. Set and Subscribe are serialized against each other, so a
// subscriber never misses a value and never sees the same Set twice.
// Subscribers must not call Set or Subscribe on the same Value from inside
// their callback; Get is safe.
type Value[T any] struct {
	notify sync.Mutex

	mu   sync.RWMutex
	cur  T
	subs []subscriber[T]
	next int
}

func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{cur: initial}
}

// Get returns the current snapshot.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur
}

// Set stores x and notifies subscribers in registration order.
func (v *Value[T]) Set(x T) {
	v.notify.Lock()
	defer v.notify.Unlock()

	v.mu.Lock()
	v.cur = x
	subs := make([]subscriber[T], len(v.subs))
	copy(subs, v.subs)
	v.mu.Unlock()

	for _, s := range subs {
		s.fn(x)
	}
}

// Subscribe registers fn, calls it once with the current value and then on
// every Set until the returned cancel func is called.
func (v *Value[T]) Subscribe(fn func(T)) (cancel func()) {
	v.notify.Lock()
	defer v.notify.Unlock()

	v.mu.Lock()
	id := v.next
	v.next++
	v.subs = append(v.subs, subscriber[T]{id: id, fn: fn})
	cur := v.cur
	v.mu.Unlock()

	fn(cur)

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			for i, s := range v.subs {
				if s.id == id {
					v.subs = append(v.subs[:i:i], v.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Subscribers reports how many subscribers are registered.
func (v *Value[T]) Subscribers() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.subs)
}
