package usage

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

const sessionColumns = `id, account_id, started_at, ended_at, duration_seconds, billed_minutes, billed_amount, billing_status, tariff, created_at`

type Repository interface {
	// Create inserts a pending session. A duplicate session id returns the
	// existing row with created=false so a retried teardown can resume.
	Create(ctx context.Context, s Session) (Session, bool, error)
	// SetStatus transitions a pending or failed session. Billed and free
	// sessions are immutable: transitions from them are rejected.
	SetStatus(ctx context.Context, id uuid.UUID, status BillingStatus) error
	Get(ctx context.Context, id uuid.UUID) (Session, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Session, error)
}

type SQLRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Create(ctx context.Context, s Session) (Session, bool, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var stored Session
	err := r.db.GetContext(ctx2, &stored, `
		INSERT INTO usage_sessions (id, account_id, started_at, ended_at, duration_seconds, billed_minutes, billed_amount, billing_status, tariff)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+sessionColumns,
		s.ID, s.AccountID, s.StartedAt, s.EndedAt, s.DurationSeconds, s.BilledMinutes, s.BilledAmount, string(s.BillingStatus), s.TariffRaw)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			existing, getErr := r.Get(ctx, s.ID)
			if getErr != nil {
				return Session{}, false, getErr
			}
			return existing, false, nil
		}
		if isFKViolation(err) {
			return Session{}, false, ErrAccountNotFound
		}
		return Session{}, false, fmt.Errorf("%w: insert session", ErrInternal)
	}

	stored.ParseTariff()
	return stored, true, nil
}

func (r *SQLRepository) SetStatus(ctx context.Context, id uuid.UUID, status BillingStatus) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx2, `
		UPDATE usage_sessions
		SET billing_status = $2
		WHERE id = $1 AND billing_status IN ('pending', 'failed')
	`, id, string(status))
	if err != nil {
		return fmt.Errorf("%w: set session status", ErrInternal)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected", ErrInternal)
	}
	if rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *SQLRepository) Get(ctx context.Context, id uuid.UUID) (Session, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var s Session
	err := r.db.GetContext(ctx2, &s, `SELECT `+sessionColumns+` FROM usage_sessions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("%w: get session", ErrInternal)
	}
	s.ParseTariff()
	return s, nil
}

func (r *SQLRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Session, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	sessions := make([]Session, 0)
	err := r.db.SelectContext(ctx2, &sessions, `
		SELECT `+sessionColumns+`
		FROM usage_sessions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions", ErrInternal)
	}
	for i := range sessions {
		sessions[i].ParseTariff()
	}
	return sessions, nil
}

func isFKViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
