package engine

import (
	"context"
	"sync"
)

// slots is a counting semaphore whose capacity can be changed while held.
// Growing wakes waiters immediately; shrinking never interrupts holders, the
// smaller size simply applies as releases drain the surplus.
type slots struct {
	mu   sync.Mutex
	cond *sync.Cond
	size int
	held int
}

func newSlots(size int) *slots {
	if size < 1 {
		size = 1
	}
	s := &slots{size: size}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Acquire blocks until a slot is free or ctx ends.
func (s *slots) Acquire(ctx context.Context) error {
	// cond.Wait cannot observe ctx, so cancellation wakes the waiters
	// and the loop re-checks.
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.cond.Broadcast()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.held >= s.size {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.held++
	return nil
}

// Release returns a slot and wakes one waiter.
func (s *slots) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held > 0 {
		s.held--
	}
	s.cond.Broadcast()
}

// SetSize changes the capacity. Values below 1 clamp to 1.
func (s *slots) SetSize(n int) {
	if n < 1 {
		n = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.size = n
	s.cond.Broadcast()
}

// Size returns the configured capacity.
func (s *slots) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Held returns the number of slots currently taken. This can exceed Size
// right after a shrink.
func (s *slots) Held() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held
}
