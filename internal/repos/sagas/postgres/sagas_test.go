package sagas

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/transfersaga/internal/apperr"
	"github.com/fastprodman/transfersaga/internal/infra/pgtestutil"
	"github.com/fastprodman/transfersaga/internal/repos/sagas"
)

func newRow() sagas.Row {
	return sagas.Row{
		ID:          uuid.New(),
		Amount:      decimal.RequireFromString("4.13"),
		AccountFrom: uuid.New(),
		AccountTo:   uuid.New(),
		Status:      "processing",
		FromStatus:  "processing",
		ToStatus:    "none",
	}
}

func TestSagas_InsertGetUpdate(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	ctx := context.Background()

	in := newRow()

	created, err := repo.Insert(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)
	assert.True(t, in.Amount.Equal(created.Amount))

	got, err := repo.Get(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, in.AccountFrom, got.AccountFrom)

	next := got
	next.FromStatus, next.ToStatus = "committed", "processing"

	updated, err := repo.Update(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, "committed", updated.FromStatus)

	// a writer still holding version 1 loses
	_, err = repo.Update(ctx, next)
	require.ErrorIs(t, err, sagas.ErrStaleSaga)

	_, err = repo.Get(ctx, uuid.New())
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSagas_SameAccountRejected(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	row := newRow()
	row.AccountTo = row.AccountFrom

	_, err := New(db).Insert(context.Background(), row)
	require.Error(t, err)
}

func TestSagas_ListStuck(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	ctx := context.Background()

	open, err := repo.Insert(ctx, newRow())
	require.NoError(t, err)

	done := newRow()
	done.Status, done.FromStatus, done.ToStatus = "completed", "committed", "committed"
	_, err = repo.Insert(ctx, done)
	require.NoError(t, err)

	parked := newRow()
	parked.Manual = true
	_, err = repo.Insert(ctx, parked)
	require.NoError(t, err)

	stuck, err := repo.ListStuck(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, open.ID, stuck[0].ID)

	stuck, err = repo.ListStuck(ctx, time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, stuck)
}

func TestSagas_Update_SQL(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	row := newRow()
	row.Version = 7

	mock.ExpectQuery(regexp.QuoteMeta(`AND version = $2`)).
		WithArgs(row.ID, int64(7), row.Status, row.FromStatus, row.ToStatus, row.Error, row.Manual, row.Reemits).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = New(db).Update(context.Background(), row)
	require.ErrorIs(t, err, sagas.ErrStaleSaga)
	require.NoError(t, mock.ExpectationsWereMet())
}
