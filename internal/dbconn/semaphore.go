package dbconn

import (
	"context"
	"sync/atomic"
)

// semaphore is a FIFO-ordered concurrency gate: goroutines blocked
// sending on a full buffered channel are served in the order they
// blocked, which is what the query dispatcher's "waiters queue in
// arrival order" requirement needs.
type semaphore struct {
	slots   chan struct{}
	waiters atomic.Int64
}

func newSemaphore(n int) *semaphore {
	if n <= 0 {
		n = 1
	}
	return &semaphore{slots: make(chan struct{}, n)}
}

func (s *semaphore) Acquire(ctx context.Context) error {
	s.waiters.Add(1)
	defer s.waiters.Add(-1)
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *semaphore) Release() {
	<-s.slots
}

func (s *semaphore) InFlight() int {
	return len(s.slots)
}

func (s *semaphore) Waiters() int {
	return int(s.waiters.Load())
}
