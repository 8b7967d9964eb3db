package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fastprodman/transfersaga/internal/apperr"
	"github.com/fastprodman/transfersaga/internal/events"
)

type operator interface {
	Credit(ctx context.Context, txID, accountID uuid.UUID, amount decimal.Decimal) (Receipt, error)
	Debit(ctx context.Context, txID, accountID uuid.UUID, amount decimal.Decimal, isRefund bool) (Receipt, error)
}

// Handler executes ledger requests arriving as events and answers each one
// with exactly one outcome event. Business rejections become *Failed
// events; anything else is returned so the transport redelivers.
type Handler struct {
	ledger operator
	pub    events.Publisher
}

func NewHandler(l operator, pub events.Publisher) *Handler {
	return &Handler{ledger: l, pub: pub}
}

func (h *Handler) Register(r *events.Router) {
	r.Handle(events.KindSourceDebitRequested, h.HandleSourceDebit)
	r.Handle(events.KindDestinationCreditRequested, h.HandleDestinationCredit)
}

func (h *Handler) HandleSourceDebit(ctx context.Context, e events.Event) error {
	rcpt, err := h.ledger.Credit(ctx, e.TransactionID, e.AccountID, e.Amount)

	out := events.SourceDebitSucceeded(e.TransactionID, e.AccountID)
	if err != nil {
		if !apperr.IsDomain(err) {
			return fmt.Errorf("source debit %s: %w", e.TransactionID, err)
		}

		out = events.SourceDebitFailed(e.TransactionID, e.AccountID, e.Amount, err.Error())
	}

	h.log(e, rcpt, err)

	return h.publish(ctx, out)
}

func (h *Handler) HandleDestinationCredit(ctx context.Context, e events.Event) error {
	rcpt, err := h.ledger.Debit(ctx, e.TransactionID, e.AccountID, e.Amount, e.IsRefund)

	out := events.DestinationCreditSucceeded(e.TransactionID, e.AccountID, e.IsRefund)
	if err != nil {
		if !apperr.IsDomain(err) {
			return fmt.Errorf("destination credit %s: %w", e.TransactionID, err)
		}

		out = events.DestinationCreditFailed(e.TransactionID, e.AccountID, e.Amount, e.IsRefund, err.Error())
	}

	h.log(e, rcpt, err)

	return h.publish(ctx, out)
}

func (h *Handler) publish(ctx context.Context, out events.Event) error {
	err := h.pub.Publish(ctx, out)
	if err != nil {
		return fmt.Errorf("publish %s: %w", out.Kind, err)
	}

	return nil
}

func (h *Handler) log(e events.Event, rcpt Receipt, err error) {
	attrs := []any{
		"kind", e.Kind,
		"transaction_id", e.TransactionID,
		"account_id", e.AccountID,
		"is_refund", e.IsRefund,
	}

	if err != nil {
		slog.Info("ledger request rejected", append(attrs, "code", apperr.CodeOf(err), "error", err)...)
		return
	}

	slog.Info("ledger request applied", append(attrs, "amount_minor", rcpt.AmountMinor, "replayed", rcpt.Replayed)...)
}
