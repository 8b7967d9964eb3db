package saga

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fastprodman/transfersaga/internal/events"
	"github.com/fastprodman/transfersaga/internal/repos/sagas"
)

type LegState string

const (
	LegNone       LegState = "none"
	LegProcessing LegState = "processing"
	LegCommitted  LegState = "committed"
	LegCanceled   LegState = "canceled"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCanceling  Status = "canceling"
	StatusCanceled   Status = "canceled"
)

// Terminal statuses never change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// Derive maps the two leg states to the overall status. Combinations a
// transfer can never reach are reported as not ok.
func Derive(from, to LegState) (Status, bool) {
	switch {
	case (from == LegNone || from == LegProcessing) && to == LegNone:
		return StatusProcessing, true
	case from == LegCommitted && to == LegProcessing:
		return StatusProcessing, true
	case from == LegCommitted && to == LegCommitted:
		return StatusCompleted, true
	case from == LegCanceled && to == LegNone:
		return StatusCanceled, true
	case from == LegProcessing && to == LegCanceled:
		return StatusCanceling, true
	case from == LegCanceled && to == LegCanceled:
		return StatusCanceled, true
	default:
		return "", false
	}
}

// Saga is one transfer. Its overall status is always derived from the legs.
type Saga struct {
	ID          uuid.UUID
	Amount      decimal.Decimal
	AccountFrom uuid.UUID
	AccountTo   uuid.UUID
	From        LegState
	To          LegState
	Error       string
	// Manual parks the saga for an operator: the reaper skips it.
	Manual    bool
	Reemits   int
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s Saga) Status() Status {
	st, ok := Derive(s.From, s.To)
	if !ok {
		return ""
	}

	return st
}

// PendingRequest is the ledger request the saga is waiting on, if any.
func (s Saga) PendingRequest() (events.Event, bool) {
	switch {
	case s.From == LegProcessing && s.To == LegNone:
		return events.SourceDebitRequested(s.ID, s.AccountFrom, s.Amount), true
	case s.From == LegCommitted && s.To == LegProcessing:
		return events.DestinationCreditRequested(s.ID, s.AccountTo, s.Amount, false), true
	case s.From == LegProcessing && s.To == LegCanceled:
		return events.DestinationCreditRequested(s.ID, s.AccountFrom, s.Amount, true), true
	default:
		return events.Event{}, false
	}
}

func (s Saga) toRow() (sagas.Row, error) {
	st, ok := Derive(s.From, s.To)
	if !ok {
		return sagas.Row{}, fmt.Errorf("saga %s: unreachable leg states %s/%s", s.ID, s.From, s.To)
	}

	return sagas.Row{
		ID:          s.ID,
		Amount:      s.Amount,
		AccountFrom: s.AccountFrom,
		AccountTo:   s.AccountTo,
		Status:      string(st),
		FromStatus:  string(s.From),
		ToStatus:    string(s.To),
		Error:       s.Error,
		Manual:      s.Manual,
		Reemits:     s.Reemits,
		Version:     s.Version,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}, nil
}

func fromRow(r sagas.Row) Saga {
	return Saga{
		ID:          r.ID,
		Amount:      r.Amount,
		AccountFrom: r.AccountFrom,
		AccountTo:   r.AccountTo,
		From:        LegState(r.FromStatus),
		To:          LegState(r.ToStatus),
		Error:       r.Error,
		Manual:      r.Manual,
		Reemits:     r.Reemits,
		Version:     r.Version,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}
