package rabbit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/fastprodman/transfersaga/internal/events"
)

var ErrDeliveriesClosed = errors.New("delivery channel closed")

type consumeChannel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// deliveryCountHeader is set by quorum queues on every redelivery.
const deliveryCountHeader = "x-delivery-count"

// Consumer feeds one queue into a router with manual acks. A delivery is
// acked only after its handler returned nil; a handler error requeues it
// until maxDeliveries attempts were made, then dead-letters it. An
// undecodable body is dead-lettered at once.
type Consumer struct {
	ch            consumeChannel
	queue         string
	router        *events.Router
	prefetch      int
	maxDeliveries int
}

func NewConsumer(ch consumeChannel, queue string, router *events.Router, prefetch, maxDeliveries int) *Consumer {
	if prefetch < 1 {
		prefetch = 1
	}

	if maxDeliveries < 1 {
		maxDeliveries = 1
	}

	return &Consumer{ch: ch, queue: queue, router: router, prefetch: prefetch, maxDeliveries: maxDeliveries}
}

// Run consumes until ctx is done or the broker closes the channel. At most
// prefetch deliveries are handled concurrently.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.ch.Qos(c.prefetch, 0, false)
	if err != nil {
		return fmt.Errorf("set qos on %s: %w", c.queue, err)
	}

	deliveries, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	slog.Info("consuming", "queue", c.queue, "prefetch", c.prefetch)

	var g errgroup.Group
	g.SetLimit(c.prefetch)

	defer func() { _ = g.Wait() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}

				return fmt.Errorf("%s: %w", c.queue, ErrDeliveriesClosed)
			}

			g.Go(func() error {
				c.process(ctx, d)
				return nil
			})
		}
	}
}

func (c *Consumer) process(ctx context.Context, d amqp.Delivery) {
	e, err := events.Decode(d.Body)
	if err != nil {
		slog.Error("dropping undecodable message",
			"queue", c.queue, "routing_key", d.RoutingKey, "error", err)

		c.settle(d.Nack(false, false))

		return
	}

	err = c.router.Dispatch(ctx, e)
	if errors.Is(err, events.ErrUnknownKind) {
		slog.Error("dropping message nobody handles", "queue", c.queue, "kind", e.Kind)
		c.settle(d.Nack(false, false))

		return
	}

	if err != nil {
		attempt := deliveryCount(d) + 1
		if attempt >= int64(c.maxDeliveries) {
			slog.Error("handler keeps failing, dead-lettering",
				"queue", c.queue, "kind", e.Kind, "transaction_id", e.TransactionID,
				"attempt", attempt, "error", err)

			c.settle(d.Nack(false, false))

			return
		}

		slog.Warn("handler failed, requeueing",
			"queue", c.queue, "kind", e.Kind, "transaction_id", e.TransactionID,
			"attempt", attempt, "error", err)

		c.settle(d.Nack(false, true))

		return
	}

	c.settle(d.Ack(false))
}

// deliveryCount returns how many times d was delivered before. Without the
// header a redelivered message counts as one earlier attempt.
func deliveryCount(d amqp.Delivery) int64 {
	switch n := d.Headers[deliveryCountHeader].(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	}

	if d.Redelivered {
		return 1
	}

	return 0
}

func (c *Consumer) settle(err error) {
	if err != nil {
		slog.Error("settling delivery failed", "queue", c.queue, "error", err)
	}
}
