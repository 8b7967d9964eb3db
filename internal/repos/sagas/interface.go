package sagas

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fastprodman/transfersaga/internal/apperr"
)

var (
	ErrSagaNotFound = fmt.Errorf("saga %w", apperr.ErrNotFound)
	ErrStaleSaga    = errors.New("saga changed since it was read")
)

// Row is the persisted saga record. State columns are plain strings; their
// meaning belongs to the coordinator.
type Row struct {
	ID          uuid.UUID
	Amount      decimal.Decimal
	AccountFrom uuid.UUID
	AccountTo   uuid.UUID
	Status      string
	FromStatus  string
	ToStatus    string
	Error       string
	Manual      bool
	Reemits     int
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Sagas interface {
	Insert(ctx context.Context, row Row) (Row, error)
	Get(ctx context.Context, id uuid.UUID) (Row, error)
	// Update writes row if the stored version still equals row.Version and
	// returns the stored result with the bumped version. ErrStaleSaga
	// otherwise.
	Update(ctx context.Context, row Row) (Row, error)
	// ListStuck returns open, non-manual sagas untouched since before.
	ListStuck(ctx context.Context, before time.Time, limit int) ([]Row, error)
}
