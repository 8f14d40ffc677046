package engine

import (
	"context"
	"sync"
)

// registry tracks the cancel function of every job a worker currently owns,
// keyed by job id.
type registry struct {
	mu      sync.Mutex
	cancels map[int64]context.CancelFunc
}

func newRegistry() *registry {
	return &registry{cancels: make(map[int64]context.CancelFunc)}
}

func (r *registry) add(id int64, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels[id] = cancel
}

func (r *registry) remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, id)
}

// cancel fires the cancel function for id and reports whether a running
// worker was found.
func (r *registry) cancel(id int64) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// cancelAll fires every registered cancel function and returns how many
// workers were signalled.
func (r *registry) cancelAll() int {
	r.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(r.cancels))
	for _, c := range r.cancels {
		cancels = append(cancels, c)
	}
	r.mu.Unlock()
	for _, c := range cancels {
		c()
	}
	return len(cancels)
}

func (r *registry) active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancels)
}
