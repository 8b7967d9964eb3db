// Package events defines the message vocabulary exchanged between the ledger
// and the saga coordinator.
//
// Every message is an Event: one flat envelope tagged by Kind. Consumers
// dispatch on the tag (see Router), never on Go types, so the same envelope
// travels unchanged through AMQP, the in-process Bus and the tests.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindSourceDebitRequested       Kind = "source_debit.requested"
	KindSourceDebitSucceeded       Kind = "source_debit.succeeded"
	KindSourceDebitFailed          Kind = "source_debit.failed"
	KindDestinationCreditRequested Kind = "destination_credit.requested"
	KindDestinationCreditSucceeded Kind = "destination_credit.succeeded"
	KindDestinationCreditFailed    Kind = "destination_credit.failed"
)

var (
	ErrUnknownKind  = errors.New("unknown event kind")
	ErrInvalidEvent = errors.New("invalid event")
)

// Requests flow coordinator -> ledger; everything else is an outcome.
func (k Kind) IsRequest() bool {
	return k == KindSourceDebitRequested || k == KindDestinationCreditRequested
}

func (k Kind) valid() bool {
	switch k {
	case KindSourceDebitRequested, KindSourceDebitSucceeded, KindSourceDebitFailed,
		KindDestinationCreditRequested, KindDestinationCreditSucceeded, KindDestinationCreditFailed:
		return true
	default:
		return false
	}
}

type Event struct {
	Kind          Kind            `json:"kind"`
	TransactionID uuid.UUID       `json:"transactionId"`
	AccountID     uuid.UUID       `json:"accountId"`
	Amount        decimal.Decimal `json:"amount"`
	IsRefund      bool            `json:"isRefund"`
	Error         string          `json:"error,omitempty"`
}

func SourceDebitRequested(txID, accountID uuid.UUID, amount decimal.Decimal) Event {
	return Event{Kind: KindSourceDebitRequested, TransactionID: txID, AccountID: accountID, Amount: amount}
}

func SourceDebitSucceeded(txID, accountID uuid.UUID) Event {
	return Event{Kind: KindSourceDebitSucceeded, TransactionID: txID, AccountID: accountID}
}

func SourceDebitFailed(txID, accountID uuid.UUID, amount decimal.Decimal, reason string) Event {
	return Event{
		Kind:          KindSourceDebitFailed,
		TransactionID: txID,
		AccountID:     accountID,
		Amount:        amount,
		Error:         reason,
	}
}

func DestinationCreditRequested(txID, accountID uuid.UUID, amount decimal.Decimal, isRefund bool) Event {
	return Event{
		Kind:          KindDestinationCreditRequested,
		TransactionID: txID,
		AccountID:     accountID,
		Amount:        amount,
		IsRefund:      isRefund,
	}
}

func DestinationCreditSucceeded(txID, accountID uuid.UUID, isRefund bool) Event {
	return Event{
		Kind:          KindDestinationCreditSucceeded,
		TransactionID: txID,
		AccountID:     accountID,
		IsRefund:      isRefund,
	}
}

func DestinationCreditFailed(txID, accountID uuid.UUID, amount decimal.Decimal, isRefund bool, reason string) Event {
	return Event{
		Kind:          KindDestinationCreditFailed,
		TransactionID: txID,
		AccountID:     accountID,
		Amount:        amount,
		IsRefund:      isRefund,
		Error:         reason,
	}
}

// Validate checks the field set required by the event's kind.
func (e Event) Validate() error {
	if !e.Kind.valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}

	if e.TransactionID == uuid.Nil {
		return fmt.Errorf("%w: %s without transactionId", ErrInvalidEvent, e.Kind)
	}

	if e.AccountID == uuid.Nil {
		return fmt.Errorf("%w: %s without accountId", ErrInvalidEvent, e.Kind)
	}

	switch e.Kind {
	case KindSourceDebitRequested, KindDestinationCreditRequested:
		if !e.Amount.IsPositive() {
			return fmt.Errorf("%w: %s with non-positive amount %s", ErrInvalidEvent, e.Kind, e.Amount)
		}
	case KindSourceDebitFailed, KindDestinationCreditFailed:
		if e.Error == "" {
			return fmt.Errorf("%w: %s without error", ErrInvalidEvent, e.Kind)
		}
	case KindSourceDebitSucceeded, KindDestinationCreditSucceeded:
	}

	if e.IsRefund && (e.Kind == KindSourceDebitRequested || e.Kind == KindSourceDebitSucceeded || e.Kind == KindSourceDebitFailed) {
		return fmt.Errorf("%w: %s cannot be a refund", ErrInvalidEvent, e.Kind)
	}

	return nil
}

func Encode(e Event) ([]byte, error) {
	err := e.Validate()
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}

	return b, nil
}

func Decode(b []byte) (Event, error) {
	var e Event

	err := json.Unmarshal(b, &e)
	if err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w: %w", ErrInvalidEvent, err)
	}

	err = e.Validate()
	if err != nil {
		return Event{}, fmt.Errorf("decode: %w", err)
	}

	return e, nil
}

// Publisher hands an event to the transport. A nil error means the transport
// has accepted responsibility for delivering it at least once.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, e Event) error

func (f PublisherFunc) Publish(ctx context.Context, e Event) error { return f(ctx, e) }
