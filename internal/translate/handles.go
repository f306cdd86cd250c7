package translate

import (
	"context"
	"sync"
)

// Handles tracks the cancel functions of in-flight backend calls so they can
// all be cancelled at once.
type Handles struct {
	mu      sync.Mutex
	next    uint64
	cancels map[uint64]context.CancelFunc
}

// NewHandles creates an empty registry.
func NewHandles() *Handles {
	return &Handles{cancels: make(map[uint64]context.CancelFunc)}
}

// Bind derives a cancellable context from ctx and registers it. The returned
// release function unregisters and cancels it; it is safe to call twice.
func (h *Handles) Bind(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	id := h.next
	h.next++
	h.cancels[id] = cancel
	h.mu.Unlock()

	return ctx, func() {
		h.mu.Lock()
		delete(h.cancels, id)
		h.mu.Unlock()
		cancel()
	}
}

// Len returns the number of registered handles.
func (h *Handles) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.cancels)
}

// Drain cancels and forgets every registered handle.
func (h *Handles) Drain() int {
	h.mu.Lock()
	cancels := h.cancels
	h.cancels = make(map[uint64]context.CancelFunc)
	h.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	return len(cancels)
}
