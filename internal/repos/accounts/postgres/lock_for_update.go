package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fastprodman/transfersaga/internal/repos/accounts"
)

func (r *accountsRepo) LockForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (accounts.Account, error) {
	acc, err := scanAccount(tx.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return accounts.Account{}, accounts.ErrAccountNotFound
		}

		return accounts.Account{}, fmt.Errorf("lock account: %w", err)
	}

	return acc, nil
}
