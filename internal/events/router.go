package events

import (
	"context"
	"fmt"
	"sync"
)

// HandlerFunc processes one delivery. Returning an error asks the transport
// to redeliver; returning nil acknowledges the event.
type HandlerFunc func(ctx context.Context, e Event) error

// Router dispatches events to the handler registered for their Kind.
type Router struct {
	mu       sync.RWMutex
	handlers map[Kind]HandlerFunc
}

func NewRouter() *Router {
	return &Router{handlers: make(map[Kind]HandlerFunc)}
}

// Handle registers h for kind, replacing any previous registration.
func (r *Router) Handle(kind Kind, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[kind] = h
}

// Kinds lists the registered kinds; transports use it to bind queues.
func (r *Router) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}

	return kinds
}

func (r *Router) Dispatch(ctx context.Context, e Event) error {
	r.mu.RLock()
	h, ok := r.handlers[e.Kind]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("dispatch %q: %w", e.Kind, ErrUnknownKind)
	}

	return h(ctx, e)
}
