package history

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/fastprodman/transfersaga/internal/repos/history"
)

var _ history.History = (*historyRepo)(nil)

type historyRepo struct{ db *sql.DB }

func New(db *sql.DB) *historyRepo {
	return &historyRepo{db: db}
}

func (r *historyRepo) Append(ctx context.Context, tx *sql.Tx, e history.Entry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO account_history (account_id, transaction_id, operation_kind, amount, is_refund)
		VALUES ($1, $2, $3, $4, $5)
	`, e.AccountID, e.TransactionID, e.Kind, e.AmountMinor, e.IsRefund)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	return nil
}

// ListByAccount returns the newest entries first.
func (r *historyRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]history.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, transaction_id, operation_kind, amount, is_refund, created_at
		FROM account_history
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []history.Entry

	for rows.Next() {
		var e history.Entry

		err = rows.Scan(&e.ID, &e.AccountID, &e.TransactionID, &e.Kind, &e.AmountMinor, &e.IsRefund, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}

		out = append(out, e)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	return out, nil
}
