package saga

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fastprodman/transfersaga/internal/apperr"
	"github.com/fastprodman/transfersaga/internal/events"
	"github.com/fastprodman/transfersaga/internal/infra/alerting"
	"github.com/fastprodman/transfersaga/internal/repos/sagas"
	pgsagas "github.com/fastprodman/transfersaga/internal/repos/sagas/postgres"
)

// maxSaveAttempts bounds the reload-and-retry loop when the saga row changed
// between read and write (e.g. the reaper bumped it).
const maxSaveAttempts = 3

// Coordinator owns the saga records. It reacts to ledger outcomes, never
// polls, and sends at most one ledger request per outcome.
//
// Effects of one outcome are ordered publish-then-save: a crash in between
// leaves the saga unchanged, so the outcome is redelivered and the request
// re-sent. The ledger's dedup absorbs the second copy.
type Coordinator struct {
	store   sagas.Sagas
	pub     events.Publisher
	alerter alerting.Alerter
}

func New(dbx *sql.DB, pub events.Publisher, alerter alerting.Alerter) *Coordinator {
	return NewWithStore(pgsagas.New(dbx), pub, alerter)
}

func NewWithStore(store sagas.Sagas, pub events.Publisher, alerter alerting.Alerter) *Coordinator {
	return &Coordinator{store: store, pub: pub, alerter: alerter}
}

func (c *Coordinator) Register(r *events.Router) {
	r.Handle(events.KindSourceDebitSucceeded, c.HandleOutcome)
	r.Handle(events.KindSourceDebitFailed, c.HandleOutcome)
	r.Handle(events.KindDestinationCreditSucceeded, c.HandleOutcome)
	r.Handle(events.KindDestinationCreditFailed, c.HandleOutcome)
}

// Initiate records a new transfer and asks the ledger for the source debit.
// If the request cannot be published the saga is still returned: it is
// durable and the reaper re-sends the request.
func (c *Coordinator) Initiate(ctx context.Context, amount decimal.Decimal, from, to uuid.UUID) (Saga, error) {
	if from == to {
		return Saga{}, apperr.Invalid("source and destination account are the same")
	}

	if from == uuid.Nil || to == uuid.Nil {
		return Saga{}, apperr.Invalid("both accounts are required")
	}

	if !amount.IsPositive() {
		return Saga{}, apperr.Invalid("amount must be > 0, got %s", amount)
	}

	s := Saga{
		ID:          uuid.New(),
		Amount:      amount,
		AccountFrom: from,
		AccountTo:   to,
		From:        LegProcessing,
		To:          LegNone,
	}

	row, err := s.toRow()
	if err != nil {
		return Saga{}, err
	}

	row, err = c.store.Insert(ctx, row)
	if err != nil {
		return Saga{}, fmt.Errorf("initiate transfer: %w", err)
	}

	s = fromRow(row)

	err = c.pub.Publish(ctx, events.SourceDebitRequested(s.ID, s.AccountFrom, s.Amount))
	if err != nil {
		slog.Warn("source debit request not published, left to reaper",
			"transaction_id", s.ID, "error", err)
	}

	slog.Info("transfer initiated",
		"transaction_id", s.ID,
		"account_from", s.AccountFrom,
		"account_to", s.AccountTo,
		"amount", s.Amount.String(),
	)

	return s, nil
}

func (c *Coordinator) Get(ctx context.Context, id uuid.UUID) (Saga, error) {
	row, err := c.store.Get(ctx, id)
	if err != nil {
		return Saga{}, fmt.Errorf("get saga %s: %w", id, err)
	}

	return fromRow(row), nil
}

// HandleOutcome advances the saga named by e. Unknown sagas and
// inconsistent events are alerted and acknowledged; stale redeliveries are
// dropped; infrastructure errors are returned for redelivery.
func (c *Coordinator) HandleOutcome(ctx context.Context, e events.Event) error {
	for range maxSaveAttempts {
		s, err := c.Get(ctx, e.TransactionID)
		if errors.Is(err, apperr.ErrNotFound) {
			c.raise(ctx, apperr.CodeProtocolViolation, e.TransactionID, e.AccountID,
				fmt.Sprintf("%s references unknown saga", e.Kind))

			return nil
		}

		if err != nil {
			return err
		}

		step, err := Transition(s, e)
		switch {
		case errors.Is(err, ErrStaleEvent):
			slog.Debug("dropping stale outcome", "kind", e.Kind, "transaction_id", e.TransactionID, "reason", err)
			return nil
		case errors.Is(err, apperr.ErrProtocolViolation):
			c.raise(ctx, apperr.CodeProtocolViolation, e.TransactionID, e.AccountID, err.Error())
			return nil
		case err != nil:
			return fmt.Errorf("transition %s: %w", e.TransactionID, err)
		}

		if step.Emit != nil {
			err = c.pub.Publish(ctx, *step.Emit)
			if err != nil {
				return fmt.Errorf("publish %s: %w", step.Emit.Kind, err)
			}
		}

		next, err := c.save(ctx, step.Next)
		if errors.Is(err, sagas.ErrStaleSaga) {
			continue
		}

		if err != nil {
			return err
		}

		if step.CompensationFailed {
			c.raise(ctx, apperr.CodeCompensationFailure, next.ID, e.AccountID,
				fmt.Sprintf("refund to %s failed, saga left canceling: %s", next.AccountFrom, e.Error))
		}

		slog.Info("saga advanced",
			"transaction_id", next.ID,
			"event", e.Kind,
			"status", next.Status(),
			"account_from_status", next.From,
			"account_to_status", next.To,
		)

		return nil
	}

	return fmt.Errorf("handle %s for %s: %w", e.Kind, e.TransactionID, sagas.ErrStaleSaga)
}

// Resume hands a parked saga back to automation: the reaper budget is reset
// and the pending request is sent again. A refund the ledger rejected
// before is tried again for real.
//
// The saga is unparked before the request goes out, so its outcome never
// meets a parked saga. If the request cannot be published the reaper
// re-sends it.
func (c *Coordinator) Resume(ctx context.Context, id uuid.UUID) (Saga, error) {
	s, err := c.Get(ctx, id)
	if err != nil {
		return Saga{}, err
	}

	if !s.Manual {
		return Saga{}, fmt.Errorf("saga %s is not awaiting manual resolution: %w", id, apperr.ErrInvalidState)
	}

	req, ok := s.PendingRequest()
	if !ok {
		return Saga{}, fmt.Errorf("saga %s is %s with nothing to resend: %w", id, s.Status(), apperr.ErrInvalidState)
	}

	s.Manual = false
	s.Reemits = 0

	s, err = c.save(ctx, s)
	if err != nil {
		return Saga{}, err
	}

	err = c.pub.Publish(ctx, req)
	if err != nil {
		slog.Warn("resumed request not published, left to reaper",
			"transaction_id", s.ID, "request", req.Kind, "error", err)

		return s, nil
	}

	slog.Info("saga resumed", "transaction_id", s.ID, "request", req.Kind, "is_refund", req.IsRefund)

	return s, nil
}

func (c *Coordinator) save(ctx context.Context, s Saga) (Saga, error) {
	row, err := s.toRow()
	if err != nil {
		return Saga{}, err
	}

	row, err = c.store.Update(ctx, row)
	if err != nil {
		return Saga{}, fmt.Errorf("save saga %s: %w", s.ID, err)
	}

	return fromRow(row), nil
}

// raise never fails the caller: the condition is already recorded (or
// unrecordable), and retrying the delivery would not change that.
func (c *Coordinator) raise(ctx context.Context, code apperr.Code, txID, accountID uuid.UUID, msg string) {
	err := c.alerter.Alert(ctx, alerting.Alert{
		Code:          code,
		TransactionID: txID,
		AccountID:     accountID,
		Message:       msg,
	})
	if err != nil {
		slog.Error("alert delivery failed", "code", code, "transaction_id", txID, "message", msg, "error", err)
	}
}
