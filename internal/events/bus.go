package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrRedeliveryExhausted is returned by Drain when a handler keeps failing.
var ErrRedeliveryExhausted = errors.New("redelivery exhausted")

// Bus is an in-process, at-least-once transport. Publish only enqueues;
// Drain delivers in FIFO order and re-enqueues an event whose handler
// failed, the way a broker requeues a nacked message.
type Bus struct {
	router      *Router
	maxAttempts int

	mu      sync.Mutex
	queue   []pending
	history []Event
}

type pending struct {
	event    Event
	attempts int
}

func NewBus(router *Router, maxAttempts int) *Bus {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Bus{router: router, maxAttempts: maxAttempts}
}

func (b *Bus) Publish(_ context.Context, e Event) error {
	err := e.Validate()
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.queue = append(b.queue, pending{event: e})
	b.history = append(b.history, e)

	return nil
}

// Drain delivers until the queue is empty. Handlers may publish while
// draining.
func (b *Bus) Drain(ctx context.Context) error {
	for {
		err := ctx.Err()
		if err != nil {
			return fmt.Errorf("drain: %w", err)
		}

		p, ok := b.pop()
		if !ok {
			return nil
		}

		err = b.router.Dispatch(ctx, p.event)
		if err == nil {
			continue
		}

		p.attempts++
		if p.attempts >= b.maxAttempts {
			return fmt.Errorf("%w: %s for %s: %w", ErrRedeliveryExhausted, p.event.Kind, p.event.TransactionID, err)
		}

		slog.Warn("redelivering event", "kind", p.event.Kind, "transaction_id", p.event.TransactionID, "error", err)

		b.mu.Lock()
		b.queue = append(b.queue, p)
		b.mu.Unlock()
	}
}

// Published returns every event accepted so far, in publish order.
func (b *Bus) Published() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Event, len(b.history))
	copy(out, b.history)

	return out
}

func (b *Bus) pop() (pending, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		return pending{}, false
	}

	p := b.queue[0]
	b.queue = b.queue[1:]

	return p, true
}
