// Package observable provides a value holder whose changes are pushed to
// explicit subscribers.
//
// Values are handed out as-is, so callers must store immutable snapshots: a
// stored slice must never be written to afterwards.
package observable

import "sync"

// Value holds the latest T and notifies subscribers after every Store.
type Value[T any] struct {
	// deliver serializes Store calls so subscribers observe changes in the
	// order they were stored.
	deliver sync.Mutex

	mu     sync.RWMutex
	v      T
	nextID uint64
	subs   []subscriber[T]
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// New returns a Value holding initial.
func New[T any](initial T) *Value[T] {
	return &Value[T]{v: initial}
}

// Load returns the current value.
func (o *Value[T]) Load() T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.v
}

// Store replaces the current value and calls every subscriber with it,
// synchronously, in subscription order. Subscribers must not call Store.
func (o *Value[T]) Store(v T) {
	o.deliver.Lock()
	defer o.deliver.Unlock()

	o.mu.Lock()
	o.v = v
	subs := make([]subscriber[T], len(o.subs))
	copy(subs, o.subs)
	o.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// Subscribe registers fn for future changes and returns a function that
// removes the subscription. The current value is not replayed; call Load for it.
func (o *Value[T]) Subscribe(fn func(T)) (cancel func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.nextID++
	id := o.nextID
	o.subs = append(o.subs, subscriber[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			for i, s := range o.subs {
				if s.id == id {
					o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
					return
				}
			}
		})
	}
}
