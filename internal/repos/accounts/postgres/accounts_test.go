package accounts

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/fastprodman/transfersaga/internal/apperr"
	"github.com/fastprodman/transfersaga/internal/infra/pgtestutil"
	"github.com/fastprodman/transfersaga/internal/repos/accounts"
)

func seedAccount(t *testing.T, repo *accountsRepo, balance int64) uuid.UUID {
	t.Helper()

	acc, err := repo.Create(context.Background(), accounts.Account{
		ID:           uuid.New(),
		BalanceMinor: balance,
		Scale:        100,
		Status:       accounts.StatusActive,
	})
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}

	return acc.ID
}

func TestAccounts_DecreaseBalance_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		balance     int64
		amount      int64
		wantBalance int64
		wantErr     error
	}{
		{name: "sufficient_funds", balance: 1_000, amount: 250, wantBalance: 750},
		{name: "exact_to_zero", balance: 300, amount: 300, wantBalance: 0},
		{name: "insufficient_funds_balance_unchanged", balance: 200, amount: 300, wantBalance: 200, wantErr: apperr.ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db, cleanup := pgtestutil.NewTestDB(t)
			defer cleanup()

			repo := New(db)
			id := seedAccount(t, repo, tt.balance)

			ctx := context.Background()

			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				t.Fatalf("begin tx: %v", err)
			}
			defer tx.Rollback()

			_, err = repo.LockForUpdate(ctx, tx, id)
			if err != nil {
				t.Fatalf("lock: %v", err)
			}

			err = repo.DecreaseBalance(ctx, tx, id, tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("DecreaseBalance err = %v, want %v", err, tt.wantErr)
			}

			if err := tx.Commit(); err != nil {
				t.Fatalf("commit: %v", err)
			}

			got, err := repo.Get(ctx, id)
			if err != nil {
				t.Fatalf("get: %v", err)
			}

			if got.BalanceMinor != tt.wantBalance {
				t.Fatalf("balance = %d, want %d", got.BalanceMinor, tt.wantBalance)
			}
		})
	}
}

func TestAccounts_LockForUpdate_Missing(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)

	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback()

	_, err = repo.LockForUpdate(context.Background(), tx, uuid.New())
	if !errors.Is(err, accounts.ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestAccounts_Deactivate(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	id := seedAccount(t, repo, 500)

	first, err := repo.Deactivate(context.Background(), id)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	if first.Status != accounts.StatusInactive || first.BalanceMinor != 500 {
		t.Fatalf("unexpected account after deactivate: %+v", first)
	}

	second, err := repo.Deactivate(context.Background(), id)
	if err != nil {
		t.Fatalf("deactivate again: %v", err)
	}

	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Fatalf("repeated deactivate touched updated_at: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}

	_, err = repo.Deactivate(context.Background(), uuid.New())
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestAccounts_BalanceUpdates_SQL(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := New(db)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SET balance = balance - $2`)).
		WithArgs(id, int64(50)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`SET balance = balance + $2`)).
		WithArgs(id, int64(50), int64(math.MaxInt64-50)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM accounts WHERE id = $1`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectRollback()

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	err = repo.DecreaseBalance(context.Background(), tx, id, 50)
	if !errors.Is(err, accounts.ErrInsufficientFunds) {
		t.Fatalf("decrease err = %v, want ErrInsufficientFunds", err)
	}

	err = repo.IncreaseBalance(context.Background(), tx, id, 50)
	if !errors.Is(err, accounts.ErrAccountNotFound) {
		t.Fatalf("increase err = %v, want ErrAccountNotFound", err)
	}

	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		t.Fatalf("rollback: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAccounts_IncreaseBalance_Overflow(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	ctx := context.Background()

	tests := []struct {
		name        string
		balance     int64
		amount      int64
		wantErr     error
		wantBalance int64
	}{
		{name: "up to the limit", balance: math.MaxInt64 - 10, amount: 10, wantBalance: math.MaxInt64},
		{name: "past the limit", balance: math.MaxInt64 - 10, amount: 11, wantErr: accounts.ErrBalanceOverflow, wantBalance: math.MaxInt64 - 10},
		{name: "full balance", balance: math.MaxInt64, amount: 1, wantErr: accounts.ErrBalanceOverflow, wantBalance: math.MaxInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := seedAccount(t, repo, tt.balance)

			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				t.Fatalf("begin: %v", err)
			}

			err = repo.IncreaseBalance(ctx, tx, id, tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("increase err = %v, want %v", err, tt.wantErr)
			}

			if tt.wantErr != nil && !errors.Is(err, apperr.ErrInvalidState) {
				t.Fatalf("overflow must be invalid_state, got %v", err)
			}

			// the transaction is still usable after a refused increase
			if _, err := repo.LockForUpdate(ctx, tx, id); err != nil {
				t.Fatalf("lock after increase: %v", err)
			}

			if err := tx.Commit(); err != nil {
				t.Fatalf("commit: %v", err)
			}

			acc, err := repo.Get(ctx, id)
			if err != nil {
				t.Fatalf("get: %v", err)
			}

			if acc.BalanceMinor != tt.wantBalance {
				t.Fatalf("balance = %d, want %d", acc.BalanceMinor, tt.wantBalance)
			}
		})
	}
}
