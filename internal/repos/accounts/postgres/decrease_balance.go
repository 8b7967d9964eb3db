package accounts

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/fastprodman/transfersaga/internal/repos/accounts"
)

// DecreaseBalance checks and decrements in one statement; a balance that
// cannot cover amount is left untouched.
func (r *accountsRepo) DecreaseBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, amount int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = balance - $2,
		    updated_at = now()
		WHERE id = $1
		  AND balance >= $2
	`, id, amount)
	if err != nil {
		return fmt.Errorf("decrease balance: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return accounts.ErrInsufficientFunds
	}

	return nil
}
