package accounts

import (
	"database/sql"

	"github.com/fastprodman/transfersaga/internal/repos/accounts"
)

var _ accounts.Accounts = (*accountsRepo)(nil)

const accountColumns = `id, balance, scale, status, created_at, updated_at`

type accountsRepo struct{ db *sql.DB }

func New(db *sql.DB) *accountsRepo {
	return &accountsRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (accounts.Account, error) {
	var acc accounts.Account

	err := row.Scan(&acc.ID, &acc.BalanceMinor, &acc.Scale, &acc.Status, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return accounts.Account{}, err
	}

	return acc, nil
}
