package accounts

import (
	"context"
	"fmt"

	"github.com/fastprodman/transfersaga/internal/repos/accounts"
)

func (r *accountsRepo) Create(ctx context.Context, acc accounts.Account) (accounts.Account, error) {
	created, err := scanAccount(r.db.QueryRowContext(ctx, `
		INSERT INTO accounts (id, balance, scale, status)
		VALUES ($1, $2, $3, $4)
		RETURNING `+accountColumns,
		acc.ID, acc.BalanceMinor, acc.Scale, acc.Status))
	if err != nil {
		return accounts.Account{}, fmt.Errorf("insert account: %w", err)
	}

	return created, nil
}
