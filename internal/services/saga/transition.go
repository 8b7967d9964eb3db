package saga

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fastprodman/transfersaga/internal/apperr"
	"github.com/fastprodman/transfersaga/internal/events"
)

// ErrStaleEvent marks an outcome the saga has already moved past, typically
// a redelivery. It is acknowledged and dropped.
var ErrStaleEvent = errors.New("stale outcome event")

// Step is the result of applying one outcome event.
type Step struct {
	Next Saga
	// Emit is the single request to send, if the transition sends one.
	Emit *events.Event
	// CompensationFailed is set when the refund leg itself was rejected.
	CompensationFailed bool
}

// Transition applies outcome e to s. It is pure: persistence, publishing
// and alerting are left to the caller.
func Transition(s Saga, e events.Event) (Step, error) {
	if e.TransactionID != s.ID {
		return Step{}, fmt.Errorf("%w: event for %s applied to saga %s", apperr.ErrProtocolViolation, e.TransactionID, s.ID)
	}

	next := s
	next.Reemits = 0
	next.Manual = false

	switch e.Kind {
	case events.KindSourceDebitSucceeded:
		err := expect(s, e, LegProcessing, LegNone, s.AccountFrom)
		if err != nil {
			return Step{}, err
		}

		next.From, next.To = LegCommitted, LegProcessing
		req := events.DestinationCreditRequested(s.ID, s.AccountTo, s.Amount, false)

		return Step{Next: next, Emit: &req}, nil

	case events.KindSourceDebitFailed:
		err := expect(s, e, LegProcessing, LegNone, s.AccountFrom)
		if err != nil {
			return Step{}, err
		}

		next.From, next.To = LegCanceled, LegNone
		next.Error = e.Error

		return Step{Next: next}, nil

	case events.KindDestinationCreditSucceeded:
		if e.IsRefund {
			err := expect(s, e, LegProcessing, LegCanceled, s.AccountFrom)
			if err != nil {
				return Step{}, err
			}

			next.From = LegCanceled

			return Step{Next: next}, nil
		}

		err := expect(s, e, LegCommitted, LegProcessing, s.AccountTo)
		if err != nil {
			return Step{}, err
		}

		next.To = LegCommitted

		return Step{Next: next}, nil

	case events.KindDestinationCreditFailed:
		if e.IsRefund {
			err := expect(s, e, LegProcessing, LegCanceled, s.AccountFrom)
			if err != nil {
				return Step{}, err
			}

			if s.Manual && s.Error == e.Error {
				return Step{}, fmt.Errorf("%w: compensation failure already recorded", ErrStaleEvent)
			}

			next.Error = e.Error
			next.Manual = true

			return Step{Next: next, CompensationFailed: true}, nil
		}

		err := expect(s, e, LegCommitted, LegProcessing, s.AccountTo)
		if err != nil {
			return Step{}, err
		}

		next.From, next.To = LegProcessing, LegCanceled
		next.Error = e.Error
		refund := events.DestinationCreditRequested(s.ID, s.AccountFrom, s.Amount, true)

		return Step{Next: next, Emit: &refund}, nil

	default:
		return Step{}, fmt.Errorf("%w: coordinator cannot handle %q", apperr.ErrProtocolViolation, e.Kind)
	}
}

func expect(s Saga, e events.Event, from, to LegState, account uuid.UUID) error {
	if e.AccountID != account {
		return fmt.Errorf("%w: %s names account %s, saga %s expects %s",
			apperr.ErrProtocolViolation, e.Kind, e.AccountID, s.ID, account)
	}

	if s.From != from || s.To != to {
		return fmt.Errorf("%w: %s while saga %s is %s/%s", ErrStaleEvent, e.Kind, s.ID, s.From, s.To)
	}

	return nil
}
