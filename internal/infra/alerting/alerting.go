// Package alerting routes conditions that need an operator: a refund leg
// that failed, an outcome for an unknown saga, a saga the reaper gave up on.
package alerting

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/transfersaga/internal/apperr"
)

type Alert struct {
	Code          apperr.Code `json:"code"`
	TransactionID uuid.UUID   `json:"transactionId"`
	AccountID     uuid.UUID   `json:"accountId,omitempty"`
	Message       string      `json:"message"`
	RaisedAt      time.Time   `json:"raisedAt"`
}

type Alerter interface {
	Alert(ctx context.Context, a Alert) error
}

// Log writes alerts to the process logger at error level.
type Log struct{}

func (Log) Alert(_ context.Context, a Alert) error {
	slog.Error("operator alert",
		"code", a.Code,
		"transaction_id", a.TransactionID,
		"account_id", a.AccountID,
		"message", a.Message,
	)

	return nil
}

// Fanout delivers to every alerter and joins their errors.
type Fanout []Alerter

func (f Fanout) Alert(ctx context.Context, a Alert) error {
	if a.RaisedAt.IsZero() {
		a.RaisedAt = time.Now().UTC()
	}

	var errs []error

	for _, al := range f {
		err := al.Alert(ctx, a)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
