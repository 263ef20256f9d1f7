package registry

import (
	"context"
	"sync"
)

// Handle is an owned reference to one running background task.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Go runs fn in a new goroutine under a context derived from parent and
// returns its handle. fn must return promptly once its context is done.
func Go(parent context.Context, fn func(ctx context.Context)) *Handle {
	ctx, cancel := context.WithCancel(parent)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer cancel()
		fn(ctx)
	}()
	return h
}

// Cancel asks the task to stop. The task observes it at its next check point.
func (h *Handle) Cancel() { h.cancel() }

// Done is closed once the task goroutine has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Registry keeps at most one task per identity. Installing a task for an
// identity cancels the one it replaces.
type Registry[K comparable] struct {
	mu    sync.Mutex
	tasks map[K]*Handle
}

func New[K comparable]() *Registry[K] {
	return &Registry[K]{tasks: make(map[K]*Handle)}
}

// Replace installs h for id and cancels the previous task, if any. It
// reports whether a previous task was replaced.
func (r *Registry[K]) Replace(id K, h *Handle) bool {
	r.mu.Lock()
	old, ok := r.tasks[id]
	r.tasks[id] = h
	r.mu.Unlock()

	if ok && old != h {
		old.Cancel()
	}
	return ok
}

// RemoveAndCancel removes and cancels the task for id. The removed handle is
// returned so callers can wait on it; nil means there was nothing to remove.
func (r *Registry[K]) RemoveAndCancel(id K) *Handle {
	r.mu.Lock()
	h, ok := r.tasks[id]
	delete(r.tasks, id)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	h.Cancel()
	return h
}

// Get returns the task installed for id.
func (r *Registry[K]) Get(id K) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.tasks[id]
	return h, ok
}

// Len returns the number of identities with an installed task.
func (r *Registry[K]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}
