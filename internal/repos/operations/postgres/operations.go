package operations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fastprodman/transfersaga/internal/apperr"
	"github.com/fastprodman/transfersaga/internal/repos/operations"
)

var _ operations.Operations = (*operationsRepo)(nil)

type operationsRepo struct{ db *sql.DB }

func New(db *sql.DB) *operationsRepo {
	return &operationsRepo{db: db}
}

func (r *operationsRepo) Reserve(ctx context.Context, tx *sql.Tx, key operations.Key) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_operations (transaction_id, account_id, operation_kind, outcome)
		VALUES ($1, $2, $3, $4)
	`, key.TransactionID, key.AccountID, key.Kind, operations.OutcomePending)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" { // unique_violation
				return operations.ErrDuplicateOperation
			}
		}

		return fmt.Errorf("reserve operation: %w", err)
	}

	return nil
}

func (r *operationsRepo) Reopen(ctx context.Context, tx *sql.Tx, key operations.Key) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE ledger_operations
		SET outcome = $4, error_code = '', error_message = ''
		WHERE transaction_id = $1
		  AND account_id = $2
		  AND operation_kind = $3
		  AND outcome = 'rejected'
	`, key.TransactionID, key.AccountID, key.Kind, operations.OutcomePending)
	if err != nil {
		return fmt.Errorf("reopen operation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return operations.ErrDuplicateOperation
	}

	return nil
}

func (r *operationsRepo) MarkApplied(ctx context.Context, tx *sql.Tx, key operations.Key, amountMinor int64) error {
	return r.finish(ctx, tx, key, operations.OutcomeApplied, amountMinor, "", "")
}

func (r *operationsRepo) MarkRejected(ctx context.Context, tx *sql.Tx, key operations.Key, code apperr.Code, msg string) error {
	return r.finish(ctx, tx, key, operations.OutcomeRejected, 0, code, msg)
}

func (r *operationsRepo) finish(
	ctx context.Context,
	tx *sql.Tx,
	key operations.Key,
	outcome operations.Outcome,
	amountMinor int64,
	code apperr.Code,
	msg string,
) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE ledger_operations
		SET outcome = $4, amount = $5, error_code = $6, error_message = $7
		WHERE transaction_id = $1
		  AND account_id = $2
		  AND operation_kind = $3
		  AND outcome = 'pending'
	`, key.TransactionID, key.AccountID, key.Kind, outcome, amountMinor, code, msg)
	if err != nil {
		return fmt.Errorf("finish operation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("finish operation: %w", operations.ErrOperationNotFound)
	}

	return nil
}

func (r *operationsRepo) Get(ctx context.Context, key operations.Key) (operations.Operation, error) {
	op := operations.Operation{Key: key}

	err := r.db.QueryRowContext(ctx, `
		SELECT outcome, amount, error_code, error_message
		FROM ledger_operations
		WHERE transaction_id = $1
		  AND account_id = $2
		  AND operation_kind = $3
	`, key.TransactionID, key.AccountID, key.Kind).Scan(&op.Outcome, &op.AmountMinor, &op.ErrorCode, &op.ErrorMessage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return operations.Operation{}, operations.ErrOperationNotFound
		}

		return operations.Operation{}, fmt.Errorf("get operation: %w", err)
	}

	return op, nil
}
