package referral

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const queryTimeout = 3 * time.Second

const recordColumns = `id, referrer_id, referred_id, code, status, referrer_minutes, referred_minutes, created_at, rewarded_at`

type Repository interface {
	Create(ctx context.Context, referrerID, referredID uuid.UUID, code string, referrerMinutes, referredMinutes int64) (Record, error)
	Get(ctx context.Context, id uuid.UUID) (Record, error)
	ListByReferrer(ctx context.Context, referrerID uuid.UUID, limit, offset int) ([]Record, error)
	// ClaimRewardTx atomically flips pending to rewarded inside the
	// caller's transaction and returns the claimed record. claimed=false
	// means the record is missing or already terminal.
	ClaimRewardTx(ctx context.Context, dbtx *sqlx.Tx, id uuid.UUID) (rec Record, claimed bool, err error)
	// Block flips pending to blocked. Terminal; no reward is ever emitted.
	Block(ctx context.Context, id uuid.UUID) (Record, error)
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
}

type SQLRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}

func (r *SQLRepository) Create(ctx context.Context, referrerID, referredID uuid.UUID, code string, referrerMinutes, referredMinutes int64) (Record, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var rec Record
	err := r.db.GetContext(ctx2, &rec, `
		INSERT INTO referrals (id, referrer_id, referred_id, code, status, referrer_minutes, referred_minutes)
		VALUES (gen_random_uuid(), $1, $2, $3, 'pending', $4, $5)
		RETURNING `+recordColumns,
		referrerID, referredID, code, referrerMinutes, referredMinutes)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code {
			case "23505":
				return Record{}, ErrDuplicatePair
			case "23503":
				return Record{}, ErrRecordNotFound
			}
		}
		return Record{}, fmt.Errorf("%w: insert referral", ErrInternal)
	}
	return rec, nil
}

func (r *SQLRepository) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var rec Record
	err := r.db.GetContext(ctx2, &rec, `SELECT `+recordColumns+` FROM referrals WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("%w: get referral", ErrInternal)
	}
	return rec, nil
}

func (r *SQLRepository) ListByReferrer(ctx context.Context, referrerID uuid.UUID, limit, offset int) ([]Record, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	records := make([]Record, 0)
	err := r.db.SelectContext(ctx2, &records, `
		SELECT `+recordColumns+`
		FROM referrals
		WHERE referrer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, referrerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list referrals", ErrInternal)
	}
	return records, nil
}

func (r *SQLRepository) ClaimRewardTx(ctx context.Context, dbtx *sqlx.Tx, id uuid.UUID) (Record, bool, error) {
	var rec Record
	err := dbtx.GetContext(ctx, &rec, `
		UPDATE referrals
		SET status = 'rewarded', rewarded_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+recordColumns, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("%w: claim reward", ErrInternal)
	}
	return rec, true, nil
}

func (r *SQLRepository) Block(ctx context.Context, id uuid.UUID) (Record, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var rec Record
	err := r.db.GetContext(ctx2, &rec, `
		UPDATE referrals
		SET status = 'blocked'
		WHERE id = $1 AND status = 'pending'
		RETURNING `+recordColumns, id)
	if errors.Is(err, sql.ErrNoRows) {
		// Either missing or already terminal; tell the admin which.
		if _, getErr := r.Get(ctx2, id); getErr != nil {
			return Record{}, getErr
		}
		return Record{}, ErrNotPending
	}
	if err != nil {
		return Record{}, fmt.Errorf("%w: block referral", ErrInternal)
	}
	return rec, nil
}
