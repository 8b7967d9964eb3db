package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type OperationKind string

const (
	OperationCredit OperationKind = "credit"
	OperationDebit  OperationKind = "debit"
)

// Entry is one applied balance mutation. Entries are append-only.
type Entry struct {
	ID            int64
	AccountID     uuid.UUID
	TransactionID uuid.UUID
	Kind          OperationKind
	AmountMinor   int64
	IsRefund      bool
	CreatedAt     time.Time
}

type History interface {
	Append(ctx context.Context, tx *sql.Tx, e Entry) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]Entry, error)
}
