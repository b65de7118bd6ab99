package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

const txColumns = `id, account_id, kind, minutes_delta, cash_amount, source, source_ref, reason, created_at`

// SQLStore implements Store on PostgreSQL.
type SQLStore struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}

func (s *SQLStore) Append(ctx context.Context, e Entry) (Transaction, error) {
	if err := checkEntry(e); err != nil {
		return Transaction{}, err
	}

	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	dbtx, err := s.BeginTx(ctx2)
	if err != nil {
		return Transaction{}, fmt.Errorf("%w: begin tx", ErrInternal)
	}
	defer dbtx.Rollback()

	if err := s.lockAccount(ctx2, dbtx, e.AccountID); err != nil {
		return Transaction{}, err
	}

	stored, err := s.insert(ctx2, dbtx, e)
	if err != nil {
		return Transaction{}, err
	}

	if _, err := s.RefreshBalanceTx(ctx2, dbtx, e.AccountID); err != nil {
		return Transaction{}, err
	}

	if err := dbtx.Commit(); err != nil {
		return Transaction{}, fmt.Errorf("%w: commit tx", ErrInternal)
	}
	return stored, nil
}

// AppendTrial relies on the partial unique index on (account_id) WHERE
// kind='trial'. ON CONFLICT DO NOTHING makes the check-and-insert atomic:
// concurrent callers cannot both insert, and the loser reads the winner's row.
func (s *SQLStore) AppendTrial(ctx context.Context, e Entry) (Transaction, bool, error) {
	e.Kind = KindTrial
	return s.appendOnce(ctx, e, `ON CONFLICT (account_id) WHERE kind = 'trial' DO NOTHING`, func(ctx context.Context) (Transaction, error) {
		return s.getByKind(ctx, e.AccountID, KindTrial, nil)
	})
}

// AppendUsage relies on the partial unique index on (source_ref) WHERE
// kind='usage' so a retried session teardown never double-charges.
func (s *SQLStore) AppendUsage(ctx context.Context, e Entry) (Transaction, bool, error) {
	e.Kind = KindUsage
	if e.SourceRef == nil || *e.SourceRef == "" {
		return Transaction{}, false, fmt.Errorf("%w: usage entry requires source_ref", ErrInvalidEntry)
	}
	return s.appendOnce(ctx, e, `ON CONFLICT (source_ref) WHERE kind = 'usage' DO NOTHING`, func(ctx context.Context) (Transaction, error) {
		return s.getByKind(ctx, e.AccountID, KindUsage, e.SourceRef)
	})
}

func (s *SQLStore) appendOnce(ctx context.Context, e Entry, conflictClause string, existing func(context.Context) (Transaction, error)) (Transaction, bool, error) {
	if err := checkEntry(e); err != nil {
		return Transaction{}, false, err
	}

	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	dbtx, err := s.BeginTx(ctx2)
	if err != nil {
		return Transaction{}, false, fmt.Errorf("%w: begin tx", ErrInternal)
	}
	defer dbtx.Rollback()

	if err := s.lockAccount(ctx2, dbtx, e.AccountID); err != nil {
		return Transaction{}, false, err
	}

	var stored Transaction
	err = dbtx.GetContext(ctx2, &stored, `
		INSERT INTO ledger_transactions (id, account_id, kind, minutes_delta, cash_amount, source, source_ref, reason)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7)
		`+conflictClause+`
		RETURNING `+txColumns,
		e.AccountID, string(e.Kind), e.MinutesDelta, e.CashAmount, e.Source, e.SourceRef, e.Reason)
	if errors.Is(err, sql.ErrNoRows) {
		// Conflict: the row already exists. Release the lock, then read it.
		dbtx.Rollback()
		prior, err := existing(ctx2)
		if err != nil {
			return Transaction{}, false, err
		}
		return prior, false, nil
	}
	if err != nil {
		return Transaction{}, false, fmt.Errorf("%w: insert transaction", ErrInternal)
	}

	if _, err := s.RefreshBalanceTx(ctx2, dbtx, e.AccountID); err != nil {
		return Transaction{}, false, err
	}

	if err := dbtx.Commit(); err != nil {
		return Transaction{}, false, fmt.Errorf("%w: commit tx", ErrInternal)
	}
	return stored, true, nil
}

func (s *SQLStore) AppendPairTx(ctx context.Context, dbtx *sqlx.Tx, first, second Entry) (Transaction, Transaction, error) {
	if err := checkEntry(first); err != nil {
		return Transaction{}, Transaction{}, err
	}
	if err := checkEntry(second); err != nil {
		return Transaction{}, Transaction{}, err
	}

	// Lock both account rows in a stable order to avoid deadlocks when two
	// confirmations touch overlapping accounts concurrently.
	a, b := first.AccountID, second.AccountID
	if b.String() < a.String() {
		a, b = b, a
	}
	if err := s.lockAccountTx(ctx, dbtx, a); err != nil {
		return Transaction{}, Transaction{}, err
	}
	if b != a {
		if err := s.lockAccountTx(ctx, dbtx, b); err != nil {
			return Transaction{}, Transaction{}, err
		}
	}

	storedFirst, err := s.insert(ctx, dbtx, first)
	if err != nil {
		return Transaction{}, Transaction{}, err
	}
	storedSecond, err := s.insert(ctx, dbtx, second)
	if err != nil {
		return Transaction{}, Transaction{}, err
	}

	if _, err := s.RefreshBalanceTx(ctx, dbtx, first.AccountID); err != nil {
		return Transaction{}, Transaction{}, err
	}
	if second.AccountID != first.AccountID {
		if _, err := s.RefreshBalanceTx(ctx, dbtx, second.AccountID); err != nil {
			return Transaction{}, Transaction{}, err
		}
	}

	return storedFirst, storedSecond, nil
}

func (s *SQLStore) SumDeltas(ctx context.Context, accountID uuid.UUID) (int64, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var sum int64
	err := s.db.GetContext(ctx2, &sum, `
		SELECT COALESCE(SUM(minutes_delta), 0)
		FROM ledger_transactions
		WHERE account_id = $1
	`, accountID)
	if err != nil {
		return 0, fmt.Errorf("%w: sum deltas", ErrInternal)
	}
	return sum, nil
}

func (s *SQLStore) List(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	transactions := make([]Transaction, 0)
	err := s.db.SelectContext(ctx2, &transactions, `
		SELECT `+txColumns+`
		FROM ledger_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions", ErrInternal)
	}
	return transactions, nil
}

// RefreshBalanceTx recomputes the cache from the ledger. The cache column is
// never incremented in place: it is always overwritten with the live sum so
// it cannot drift from the source of truth inside a committed transaction.
func (s *SQLStore) RefreshBalanceTx(ctx context.Context, dbtx *sqlx.Tx, accountID uuid.UUID) (int64, error) {
	var balance int64
	err := dbtx.GetContext(ctx, &balance, `
		UPDATE accounts
		SET minutes_balance = (
			SELECT COALESCE(SUM(minutes_delta), 0)
			FROM ledger_transactions
			WHERE account_id = $1
		), updated_at = now()
		WHERE id = $1
		RETURNING minutes_balance
	`, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: refresh balance", ErrInternal)
	}
	return balance, nil
}

func (s *SQLStore) Reconcile(ctx context.Context, accountID uuid.UUID) (int64, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	dbtx, err := s.BeginTx(ctx2)
	if err != nil {
		return 0, fmt.Errorf("%w: begin tx", ErrInternal)
	}
	defer dbtx.Rollback()

	balance, err := s.RefreshBalanceTx(ctx2, dbtx, accountID)
	if err != nil {
		return 0, err
	}

	if err := dbtx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit tx", ErrInternal)
	}
	return balance, nil
}

func (s *SQLStore) ReconcileAll(ctx context.Context) (int64, error) {
	ctx2, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	result, err := s.db.ExecContext(ctx2, `
		UPDATE accounts
		SET minutes_balance = COALESCE((
			SELECT SUM(minutes_delta) FROM ledger_transactions t WHERE t.account_id = accounts.id
		), 0), updated_at = now()
		WHERE minutes_balance IS DISTINCT FROM COALESCE((
			SELECT SUM(minutes_delta) FROM ledger_transactions t WHERE t.account_id = accounts.id
		), 0)
	`)
	if err != nil {
		return 0, fmt.Errorf("%w: reconcile balances", ErrInternal)
	}
	repaired, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected", ErrInternal)
	}
	return repaired, nil
}

func (s *SQLStore) lockAccount(ctx context.Context, dbtx *sqlx.Tx, accountID uuid.UUID) error {
	return s.lockAccountTx(ctx, dbtx, accountID)
}

func (s *SQLStore) lockAccountTx(ctx context.Context, dbtx *sqlx.Tx, accountID uuid.UUID) error {
	var id uuid.UUID
	err := dbtx.GetContext(ctx, &id, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: lock account row", ErrInternal)
	}
	return nil
}

func (s *SQLStore) insert(ctx context.Context, dbtx *sqlx.Tx, e Entry) (Transaction, error) {
	var stored Transaction
	err := dbtx.GetContext(ctx, &stored, `
		INSERT INTO ledger_transactions (id, account_id, kind, minutes_delta, cash_amount, source, source_ref, reason)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7)
		RETURNING `+txColumns,
		e.AccountID, string(e.Kind), e.MinutesDelta, e.CashAmount, e.Source, e.SourceRef, e.Reason)
	if err != nil {
		return Transaction{}, fmt.Errorf("%w: insert transaction", ErrInternal)
	}
	return stored, nil
}

func (s *SQLStore) getByKind(ctx context.Context, accountID uuid.UUID, kind Kind, sourceRef *string) (Transaction, error) {
	query := `
		SELECT ` + txColumns + `
		FROM ledger_transactions
		WHERE account_id = $1 AND kind = $2`
	args := []interface{}{accountID, string(kind)}
	if sourceRef != nil {
		query += ` AND source_ref = $3`
		args = append(args, *sourceRef)
	}
	query += ` LIMIT 1`

	var stored Transaction
	err := s.db.GetContext(ctx, &stored, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, fmt.Errorf("%w: expected existing row", ErrInternal)
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("%w: get transaction", ErrInternal)
	}
	return stored, nil
}

func checkEntry(e Entry) error {
	if e.AccountID == uuid.Nil {
		return fmt.Errorf("%w: missing account id", ErrInvalidEntry)
	}
	if !e.Kind.Valid() {
		return ErrInvalidKind
	}
	if e.CashAmount != nil && e.Kind != KindDeposit {
		return fmt.Errorf("%w: cash_amount is only valid for deposits", ErrInvalidEntry)
	}
	return nil
}
