// Package rabbit carries events over AMQP 0-9-1. Every event is published to
// one topic exchange with its Kind as routing key; ledger requests and saga
// outcomes are consumed from two durable queues bound by kind.
package rabbit

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fastprodman/transfersaga/internal/events"
)

const (
	LedgerQueue   = "ledger.requests"
	OutcomesQueue = "saga.outcomes"

	deadLetterSuffix = ".dlx"
	contentType      = "application/json"
)

// Channel is the part of *amqp.Channel used to declare topology.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

func Dial(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	return conn, nil
}

// DeclareQueue declares the exchange, its dead-letter companion and a quorum
// queue, and binds queue to every kind. Messages rejected without requeue,
// or delivered more than deliveryLimit times, end up in <queue>.dead.
func DeclareQueue(ch Channel, exchange, queue string, kinds []events.Kind, deliveryLimit int) error {
	dlx := exchange + deadLetterSuffix

	for _, name := range []string{exchange, dlx} {
		err := ch.ExchangeDeclare(name, amqp.ExchangeTopic, true, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}

	dead := queue + ".dead"

	_, err := ch.QueueDeclare(dead, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", dead, err)
	}

	err = ch.QueueBind(dead, queue, dlx, false, nil)
	if err != nil {
		return fmt.Errorf("bind %s: %w", dead, err)
	}

	_, err = ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-queue-type":              "quorum",
		"x-delivery-limit":          int64(deliveryLimit),
		"x-dead-letter-exchange":    dlx,
		"x-dead-letter-routing-key": queue,
	})
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}

	for _, kind := range kinds {
		err = ch.QueueBind(queue, string(kind), exchange, false, nil)
		if err != nil {
			return fmt.Errorf("bind %s to %s: %w", queue, kind, err)
		}
	}

	return nil
}
