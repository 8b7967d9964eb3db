package history

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/transfersaga/internal/repos/history"
)

func TestHistory_ListByAccount(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	acc, tx := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM account_history`)).
		WithArgs(acc, 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "transaction_id", "operation_kind", "amount", "is_refund", "created_at"}).
			AddRow(int64(2), acc.String(), tx.String(), "debit", int64(413), true, now).
			AddRow(int64(1), acc.String(), tx.String(), "credit", int64(413), false, now))

	got, err := New(db).ListByAccount(context.Background(), acc, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, history.OperationDebit, got[0].Kind)
	assert.True(t, got[0].IsRefund)
	assert.Equal(t, tx, got[1].TransactionID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistory_Append(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	e := history.Entry{AccountID: uuid.New(), TransactionID: uuid.New(), Kind: history.OperationCredit, AmountMinor: 10}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO account_history`)).
		WithArgs(e.AccountID, e.TransactionID, e.Kind, e.AmountMinor, e.IsRefund).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, New(db).Append(context.Background(), tx, e))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}
