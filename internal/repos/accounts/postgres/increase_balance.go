package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/fastprodman/transfersaga/internal/repos/accounts"
)

// IncreaseBalance refuses to push the balance past the BIGINT range instead
// of letting the statement fail, which would abort the caller's transaction.
func (r *accountsRepo) IncreaseBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, amount int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = balance + $2,
		    updated_at = now()
		WHERE id = $1
		  AND balance <= $3
	`, id, amount, int64(math.MaxInt64)-amount)
	if err != nil {
		return fmt.Errorf("increase balance: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected > 0 {
		return nil
	}

	var one int

	err = tx.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return accounts.ErrAccountNotFound
	}

	if err != nil {
		return fmt.Errorf("check account: %w", err)
	}

	return accounts.ErrBalanceOverflow
}
