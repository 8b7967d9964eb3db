package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fastprodman/transfersaga/internal/repos/accounts"
)

// Deactivate is idempotent: an already inactive account is returned as is.
func (r *accountsRepo) Deactivate(ctx context.Context, id uuid.UUID) (accounts.Account, error) {
	acc, err := scanAccount(r.db.QueryRowContext(ctx, `
		UPDATE accounts
		SET status = $2,
		    updated_at = CASE WHEN status = $2 THEN updated_at ELSE now() END
		WHERE id = $1
		RETURNING `+accountColumns,
		id, accounts.StatusInactive))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return accounts.Account{}, accounts.ErrAccountNotFound
		}

		return accounts.Account{}, fmt.Errorf("deactivate account: %w", err)
	}

	return acc, nil
}
