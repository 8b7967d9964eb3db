package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fastprodman/transfersaga/internal/apperr"
	"github.com/fastprodman/transfersaga/internal/infra/pgutils"
	"github.com/fastprodman/transfersaga/internal/money"
	"github.com/fastprodman/transfersaga/internal/repos/accounts"
	pgaccounts "github.com/fastprodman/transfersaga/internal/repos/accounts/postgres"
	"github.com/fastprodman/transfersaga/internal/repos/history"
	pghistory "github.com/fastprodman/transfersaga/internal/repos/history/postgres"
	"github.com/fastprodman/transfersaga/internal/repos/operations"
	pgoperations "github.com/fastprodman/transfersaga/internal/repos/operations/postgres"
)

const defaultHistoryLimit = 100

// Ledger owns account balances. Every mutation runs in one DB transaction
// that claims the (transaction, account, kind) dedup row, locks the account
// row and applies the change, so a redelivered request replays the first
// outcome instead of applying twice.
type Ledger struct {
	db       *sql.DB
	accounts accounts.Accounts
	history  history.History
	ops      operations.Operations
}

func New(dbx *sql.DB) *Ledger {
	return &Ledger{
		db:       dbx,
		accounts: pgaccounts.New(dbx),
		history:  pghistory.New(dbx),
		ops:      pgoperations.New(dbx),
	}
}

// Receipt describes an applied mutation. Replayed is set when the request
// had already been applied and nothing changed this time.
type Receipt struct {
	TransactionID uuid.UUID
	AccountID     uuid.UUID
	Kind          history.OperationKind
	AmountMinor   int64
	IsRefund      bool
	Replayed      bool
}

type Balance struct {
	AccountID uuid.UUID
	Minor     int64
	Scale     int64
}

func (b Balance) Amount() decimal.Decimal { return money.FromMinor(b.Minor, b.Scale) }

func (b Balance) String() string { return money.Format(b.Minor, b.Scale) }

func (l *Ledger) CreateAccount(ctx context.Context, initialMinor, scale int64) (accounts.Account, error) {
	if initialMinor < 0 {
		return accounts.Account{}, apperr.Invalid("initial balance must be >= 0, got %d", initialMinor)
	}

	if scale < 1 {
		return accounts.Account{}, apperr.Invalid("scale must be >= 1, got %d", scale)
	}

	acc, err := l.accounts.Create(ctx, accounts.Account{
		ID:           uuid.New(),
		BalanceMinor: initialMinor,
		Scale:        scale,
		Status:       accounts.StatusActive,
	})
	if err != nil {
		return accounts.Account{}, fmt.Errorf("create account: %w", err)
	}

	return acc, nil
}

func (l *Ledger) GetAccount(ctx context.Context, id uuid.UUID) (accounts.Account, error) {
	acc, err := l.accounts.Get(ctx, id)
	if err != nil {
		return accounts.Account{}, fmt.Errorf("get account %s: %w", id, err)
	}

	return acc, nil
}

// GetBalance is a plain read; it takes no lock.
func (l *Ledger) GetBalance(ctx context.Context, id uuid.UUID) (Balance, error) {
	acc, err := l.GetAccount(ctx, id)
	if err != nil {
		return Balance{}, err
	}

	return Balance{AccountID: acc.ID, Minor: acc.BalanceMinor, Scale: acc.Scale}, nil
}

// Deactivate flips an account to inactive for good. The balance is kept.
func (l *Ledger) Deactivate(ctx context.Context, id uuid.UUID) (accounts.Account, error) {
	acc, err := l.accounts.Deactivate(ctx, id)
	if err != nil {
		return accounts.Account{}, fmt.Errorf("deactivate account %s: %w", id, err)
	}

	return acc, nil
}

func (l *Ledger) History(ctx context.Context, id uuid.UUID) ([]history.Entry, error) {
	_, err := l.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	entries, err := l.history.ListByAccount(ctx, id, defaultHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list history %s: %w", id, err)
	}

	return entries, nil
}

// Credit takes amount out of the account (the source leg of a transfer).
// The balance never goes negative: the check and the decrement are a single
// conditional update.
func (l *Ledger) Credit(ctx context.Context, txID, accountID uuid.UUID, amount decimal.Decimal) (Receipt, error) {
	return l.apply(ctx, mutation{
		key:    operations.Key{TransactionID: txID, AccountID: accountID, Kind: history.OperationCredit},
		amount: amount,
	})
}

// Debit adds amount to the account: the destination leg, or the refund of
// a source leg when isRefund is set. isRefund is carried through unchanged.
func (l *Ledger) Debit(ctx context.Context, txID, accountID uuid.UUID, amount decimal.Decimal, isRefund bool) (Receipt, error) {
	return l.apply(ctx, mutation{
		key:      operations.Key{TransactionID: txID, AccountID: accountID, Kind: history.OperationDebit},
		amount:   amount,
		isRefund: isRefund,
	})
}

type mutation struct {
	key      operations.Key
	amount   decimal.Decimal
	isRefund bool
}

func (m mutation) receipt() Receipt {
	return Receipt{
		TransactionID: m.key.TransactionID,
		AccountID:     m.key.AccountID,
		Kind:          m.key.Kind,
		IsRefund:      m.isRefund,
	}
}

// apply runs the whole flow in a single DB transaction:
//
// 1) Claim the dedup row (duplicate -> replay the recorded outcome).
// 2) Lock the account row (FOR UPDATE) and check it is active.
// 3) Apply the effect.
// 4) Append history and record the outcome.
//
// A business rejection is recorded and committed too; the balance is
// untouched in that case because every check precedes the update.
//
// Rejections are final for forward legs. A rejected refund is tried again
// when it is delivered again: nothing was moved, and the money still has to
// go back to the source account.
func (l *Ledger) apply(ctx context.Context, m mutation) (Receipt, error) {
	rcpt, err := l.attempt(ctx, m, l.ops.Reserve)
	if !errors.Is(err, operations.ErrDuplicateOperation) {
		return rcpt, err
	}

	op, err := l.recorded(ctx, m)
	if err != nil {
		return Receipt{}, err
	}

	if !m.isRefund || op.Outcome != operations.OutcomeRejected {
		return replay(m, op)
	}

	rcpt, err = l.attempt(ctx, m, l.ops.Reopen)
	if !errors.Is(err, operations.ErrDuplicateOperation) {
		return rcpt, err
	}

	// a concurrent delivery reopened it first
	op, err = l.recorded(ctx, m)
	if err != nil {
		return Receipt{}, err
	}

	return replay(m, op)
}

type claimFunc func(ctx context.Context, tx *sql.Tx, key operations.Key) error

// attempt returns operations.ErrDuplicateOperation unwrapped when claim
// finds the key taken.
func (l *Ledger) attempt(ctx context.Context, m mutation, claim claimFunc) (Receipt, error) {
	rcpt := m.receipt()

	var rejection error

	err := pgutils.WithTx(ctx, l.db, func(tx *sql.Tx) error {
		err := claim(ctx, tx, m.key)
		if err != nil {
			return err
		}

		minor, err := l.mutate(ctx, tx, m)
		if apperr.IsDomain(err) {
			rejection = err

			return l.ops.MarkRejected(ctx, tx, m.key, apperr.CodeOf(err), err.Error())
		}

		if err != nil {
			return err
		}

		err = l.history.Append(ctx, tx, history.Entry{
			AccountID:     m.key.AccountID,
			TransactionID: m.key.TransactionID,
			Kind:          m.key.Kind,
			AmountMinor:   minor,
			IsRefund:      m.isRefund,
		})
		if err != nil {
			return fmt.Errorf("append history: %w", err)
		}

		err = l.ops.MarkApplied(ctx, tx, m.key, minor)
		if err != nil {
			return fmt.Errorf("mark applied: %w", err)
		}

		rcpt.AmountMinor = minor

		return nil
	})
	if errors.Is(err, operations.ErrDuplicateOperation) {
		return Receipt{}, operations.ErrDuplicateOperation
	}

	if err != nil {
		return Receipt{}, fmt.Errorf("%s %s: %w", m.key.Kind, m.key.AccountID, err)
	}

	if rejection != nil {
		return Receipt{}, rejection
	}

	return rcpt, nil
}

func (l *Ledger) mutate(ctx context.Context, tx *sql.Tx, m mutation) (int64, error) {
	id := m.key.AccountID

	acc, err := l.accounts.LockForUpdate(ctx, tx, id)
	if err != nil {
		return 0, fmt.Errorf("account %s: %w", id, err)
	}

	if acc.Status != accounts.StatusActive {
		return 0, fmt.Errorf("account %s: %w", id, accounts.ErrAccountInactive)
	}

	minor, err := money.ToMinor(m.amount, acc.Scale)
	if err != nil {
		return 0, err
	}

	switch m.key.Kind {
	case history.OperationCredit:
		err = l.accounts.DecreaseBalance(ctx, tx, id, minor)
	case history.OperationDebit:
		err = l.accounts.IncreaseBalance(ctx, tx, id, minor)
	default:
		return 0, fmt.Errorf("unsupported operation kind %q", m.key.Kind)
	}

	if err != nil {
		return 0, fmt.Errorf("account %s: %w", id, err)
	}

	return minor, nil
}

func (l *Ledger) recorded(ctx context.Context, m mutation) (operations.Operation, error) {
	op, err := l.ops.Get(ctx, m.key)
	if err != nil {
		return operations.Operation{}, fmt.Errorf("load recorded %s: %w", m.key.Kind, err)
	}

	return op, nil
}

func replay(m mutation, op operations.Operation) (Receipt, error) {
	switch op.Outcome {
	case operations.OutcomeApplied:
		rcpt := m.receipt()
		rcpt.AmountMinor = op.AmountMinor
		rcpt.Replayed = true

		return rcpt, nil
	case operations.OutcomeRejected:
		return Receipt{}, apperr.Restore(op.ErrorCode, op.ErrorMessage)
	default:
		return Receipt{}, fmt.Errorf("recorded %s is still %s", m.key.Kind, op.Outcome)
	}
}
