package rabbit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fastprodman/transfersaga/internal/events"
)

const defaultConfirmTimeout = 5 * time.Second

var (
	ErrPublishNacked   = errors.New("broker nacked publish")
	ErrConfirmTimeout  = errors.New("publish confirmation timed out")
	ErrPublisherClosed = errors.New("publisher channel closed")
)

// ConfirmChannel is the part of *amqp.Channel the publisher needs.
type ConfirmChannel interface {
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// ChannelOpener opens a fresh channel, usually (*amqp.Connection).Channel.
type ChannelOpener func() (ConfirmChannel, error)

// Publisher sends persistent JSON events and waits for the broker's confirm,
// so a nil error means the event is durable. Publishes are serialized to keep
// confirms in order.
//
// A confirm that was not awaited (timeout, cancelled ctx, closed stream)
// would be read by the next Publish as its own, so the channel is dropped
// and the next Publish opens a new one.
type Publisher struct {
	open     ChannelOpener
	exchange string
	timeout  time.Duration

	mu       sync.Mutex
	ch       ConfirmChannel
	confirms chan amqp.Confirmation
}

var _ events.Publisher = (*Publisher)(nil)

// NewPublisher opens the first channel right away so a broken broker setup
// fails at startup.
func NewPublisher(open ChannelOpener, exchange string) (*Publisher, error) {
	p := &Publisher{
		open:     open,
		exchange: exchange,
		timeout:  defaultConfirmTimeout,
	}

	err := p.connect()
	if err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Publisher) Publish(ctx context.Context, e events.Event) error {
	body, err := events.Encode(e)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		err = p.connect()
		if err != nil {
			return err
		}
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, string(e.Kind), false, false, amqp.Publishing{
		ContentType:   contentType,
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now().UTC(),
		CorrelationId: e.TransactionID.String(),
		Type:          string(e.Kind),
		Body:          body,
	})
	if err != nil {
		p.invalidate()
		return fmt.Errorf("publish %s: %w", e.Kind, err)
	}

	err = p.awaitConfirm(ctx, e.Kind)
	if err != nil && !errors.Is(err, ErrPublishNacked) {
		p.invalidate()
	}

	return err
}

func (p *Publisher) awaitConfirm(ctx context.Context, kind events.Kind) error {
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case c, ok := <-p.confirms:
		if !ok {
			return ErrPublisherClosed
		}

		if !c.Ack {
			return fmt.Errorf("%w: %s delivery_tag=%d", ErrPublishNacked, kind, c.DeliveryTag)
		}

		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %s", ErrConfirmTimeout, kind)
	case <-ctx.Done():
		return fmt.Errorf("await confirm: %w", ctx.Err())
	}
}

// Close closes the current channel, if any.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		return nil
	}

	err := p.ch.Close()
	p.ch, p.confirms = nil, nil

	return err
}

// connect must be called with mu held.
func (p *Publisher) connect() error {
	ch, err := p.open()
	if err != nil {
		return fmt.Errorf("open publish channel: %w", err)
	}

	err = ch.Confirm(false)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("enable confirms: %w", err)
	}

	p.ch = ch
	p.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	return nil
}

// invalidate must be called with mu held. Late confirms of the dropped
// channel are drained in the background so they never block the
// connection's reader.
func (p *Publisher) invalidate() {
	ch, confirms := p.ch, p.confirms
	p.ch, p.confirms = nil, nil

	go drainConfirms(confirms, p.timeout)

	err := ch.Close()
	if err != nil && !errors.Is(err, amqp.ErrClosed) {
		slog.Warn("closing publish channel", "error", err)
	}
}

func drainConfirms(confirms <-chan amqp.Confirmation, grace time.Duration) {
	timer := time.NewTimer(grace)
	defer timer.Stop()

	for {
		select {
		case _, ok := <-confirms:
			if !ok {
				return
			}
		case <-timer.C:
			return
		}
	}
}
