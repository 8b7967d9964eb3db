package accounts

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/transfersaga/internal/apperr"
)

var (
	ErrAccountNotFound   = fmt.Errorf("account %w", apperr.ErrNotFound)
	ErrAccountInactive   = fmt.Errorf("account is not active: %w", apperr.ErrInvalidState)
	ErrInsufficientFunds = fmt.Errorf("balance too low: %w", apperr.ErrInsufficientFunds)
	ErrBalanceOverflow   = fmt.Errorf("balance would overflow: %w", apperr.ErrInvalidState)
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

type Account struct {
	ID           uuid.UUID
	BalanceMinor int64
	Scale        int64
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Accounts is the account table. Balance mutations only run inside a
// caller-owned transaction, after LockForUpdate.
type Accounts interface {
	Create(ctx context.Context, acc Account) (Account, error)
	Get(ctx context.Context, id uuid.UUID) (Account, error)
	Deactivate(ctx context.Context, id uuid.UUID) (Account, error)
	LockForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (Account, error)
	IncreaseBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, amount int64) error
	DecreaseBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, amount int64) error
}
