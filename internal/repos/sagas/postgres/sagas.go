package sagas

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/transfersaga/internal/repos/sagas"
)

var _ sagas.Sagas = (*sagasRepo)(nil)

const sagaColumns = `id, amount, account_from, account_to, status, account_from_status,
	account_to_status, error, manual, reemits, version, created_at, updated_at`

type sagasRepo struct{ db *sql.DB }

func New(db *sql.DB) *sagasRepo {
	return &sagasRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSaga(row rowScanner) (sagas.Row, error) {
	var s sagas.Row

	err := row.Scan(
		&s.ID, &s.Amount, &s.AccountFrom, &s.AccountTo, &s.Status, &s.FromStatus,
		&s.ToStatus, &s.Error, &s.Manual, &s.Reemits, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return sagas.Row{}, err
	}

	return s, nil
}

func (r *sagasRepo) Insert(ctx context.Context, row sagas.Row) (sagas.Row, error) {
	out, err := scanSaga(r.db.QueryRowContext(ctx, `
		INSERT INTO sagas (id, amount, account_from, account_to, status,
			account_from_status, account_to_status, error, manual, reemits)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+sagaColumns,
		row.ID, row.Amount, row.AccountFrom, row.AccountTo, row.Status,
		row.FromStatus, row.ToStatus, row.Error, row.Manual, row.Reemits))
	if err != nil {
		return sagas.Row{}, fmt.Errorf("insert saga: %w", err)
	}

	return out, nil
}

func (r *sagasRepo) Get(ctx context.Context, id uuid.UUID) (sagas.Row, error) {
	out, err := scanSaga(r.db.QueryRowContext(ctx, `
		SELECT `+sagaColumns+`
		FROM sagas
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sagas.Row{}, sagas.ErrSagaNotFound
		}

		return sagas.Row{}, fmt.Errorf("get saga: %w", err)
	}

	return out, nil
}

func (r *sagasRepo) Update(ctx context.Context, row sagas.Row) (sagas.Row, error) {
	out, err := scanSaga(r.db.QueryRowContext(ctx, `
		UPDATE sagas
		SET status = $3,
		    account_from_status = $4,
		    account_to_status = $5,
		    error = $6,
		    manual = $7,
		    reemits = $8,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND version = $2
		RETURNING `+sagaColumns,
		row.ID, row.Version, row.Status, row.FromStatus, row.ToStatus, row.Error, row.Manual, row.Reemits))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sagas.Row{}, sagas.ErrStaleSaga
		}

		return sagas.Row{}, fmt.Errorf("update saga: %w", err)
	}

	return out, nil
}

func (r *sagasRepo) ListStuck(ctx context.Context, before time.Time, limit int) ([]sagas.Row, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sagaColumns+`
		FROM sagas
		WHERE status IN ('processing', 'canceling')
		  AND NOT manual
		  AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("query stuck sagas: %w", err)
	}
	defer rows.Close()

	var out []sagas.Row

	for rows.Next() {
		s, err := scanSaga(rows)
		if err != nil {
			return nil, fmt.Errorf("scan saga: %w", err)
		}

		out = append(out, s)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate sagas: %w", err)
	}

	return out, nil
}

