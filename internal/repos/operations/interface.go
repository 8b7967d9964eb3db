// Package operations is the ledger's dedup table: one row per
// (transaction, account, operation kind) recording how the request ended.
package operations

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/fastprodman/transfersaga/internal/apperr"
	"github.com/fastprodman/transfersaga/internal/repos/history"
)

var (
	ErrDuplicateOperation = errors.New("duplicate ledger operation")
	ErrOperationNotFound  = errors.New("ledger operation not found")
)

type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeApplied  Outcome = "applied"
	OutcomeRejected Outcome = "rejected"
)

type Key struct {
	TransactionID uuid.UUID
	AccountID     uuid.UUID
	Kind          history.OperationKind
}

type Operation struct {
	Key
	Outcome      Outcome
	AmountMinor  int64
	ErrorCode    apperr.Code
	ErrorMessage string
}

type Operations interface {
	// Reserve claims key inside tx. A concurrent claim of the same key blocks
	// until the first transaction ends; an existing claim yields
	// ErrDuplicateOperation and leaves tx unusable.
	Reserve(ctx context.Context, tx *sql.Tx, key Key) error
	// Reopen claims a rejected key again inside tx, waiting for a concurrent
	// claim like Reserve. A key that is not rejected (any more) yields
	// ErrDuplicateOperation.
	Reopen(ctx context.Context, tx *sql.Tx, key Key) error
	MarkApplied(ctx context.Context, tx *sql.Tx, key Key, amountMinor int64) error
	MarkRejected(ctx context.Context, tx *sql.Tx, key Key, code apperr.Code, msg string) error
	Get(ctx context.Context, key Key) (Operation, error)
}
