// Package keyed runs work one-at-a-time per key.
package keyed

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"golang.org/x/sync/semaphore"
)

// Queue serializes functions that share a key. Functions with different keys
// run concurrently. Waiters for the same key are admitted in arrival order.
//
// The zero value is not usable; call NewQueue.
type Queue struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	sem  *semaphore.Weighted
	refs int
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{slots: make(map[string]*slot)}
}

// Do waits until no other function for key is running, then runs fn.
// It returns the context error if ctx is done while waiting, otherwise
// whatever fn returns.
func (q *Queue) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	s := q.acquire(key)
	defer q.release(key, s)

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return errors.Wrapf(err, "wait for %q", key)
	}
	defer s.sem.Release(1)

	return fn(ctx)
}

// Len reports how many keys currently have running or waiting functions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.slots)
}

func (q *Queue) acquire(key string) *slot {
	q.mu.Lock()
	defer q.mu.Unlock()

	s, ok := q.slots[key]
	if !ok {
		s = &slot{sem: semaphore.NewWeighted(1)}
		q.slots[key] = s
	}
	s.refs++
	return s
}

func (q *Queue) release(key string, s *slot) {
	q.mu.Lock()
	defer q.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(q.slots, key)
	}
}
