package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Store is the append-only transaction log. There are no update or delete
// operations: the set of rows for an account, summed by minutes_delta, is
// that account's true balance at any point in time.
type Store interface {
	// Append inserts one transaction and refreshes the cached balance in a
	// single database transaction. Returns ErrAccountNotFound for unknown
	// accounts.
	Append(ctx context.Context, e Entry) (Transaction, error)

	// AppendTrial appends a trial credit at most once per account. When a
	// trial row already exists the existing row is returned with
	// created=false; the call is a race-safe idempotent no-op.
	AppendTrial(ctx context.Context, e Entry) (tx Transaction, created bool, err error)

	// AppendUsage appends a usage debit at most once per source_ref
	// (session id). A retried teardown for the same session returns the
	// existing debit with created=false.
	AppendUsage(ctx context.Context, e Entry) (tx Transaction, created bool, err error)

	// AppendPairTx appends two transactions for two accounts inside the
	// caller's database transaction, refreshing both cached balances.
	// Used for referral reward + welcome pairs.
	AppendPairTx(ctx context.Context, dbtx *sqlx.Tx, first, second Entry) (Transaction, Transaction, error)

	// SumDeltas aggregates minutes_delta over all stored rows. It reads
	// only the ledger, never the cache, so it supports independent
	// reconciliation against the cached balance.
	SumDeltas(ctx context.Context, accountID uuid.UUID) (int64, error)

	// List returns transactions ordered by created_at descending.
	List(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Transaction, error)

	// RefreshBalanceTx recomputes the cached balance from the ledger inside
	// the caller's transaction and returns the new value.
	RefreshBalanceTx(ctx context.Context, dbtx *sqlx.Tx, accountID uuid.UUID) (int64, error)

	// Reconcile recomputes one cached balance from the ledger in its own
	// transaction and returns the authoritative value. This is the
	// materialized-view refresh behind every authoritative balance read.
	Reconcile(ctx context.Context, accountID uuid.UUID) (int64, error)

	// ReconcileAll repairs every cached balance that drifted from its
	// ledger sum and returns the number of repaired accounts.
	ReconcileAll(ctx context.Context) (int64, error)

	// BeginTx opens a database transaction for callers composing appends
	// with their own state transitions (referral confirmation).
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
}
