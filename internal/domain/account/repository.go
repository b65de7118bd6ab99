package account

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

type Repository interface {
	Create(ctx context.Context, email, role string) (Account, error)
	Get(ctx context.Context, id uuid.UUID) (Account, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type SQLRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Create(ctx context.Context, email, role string) (Account, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if role == "" {
		role = "student"
	}

	var acc Account
	err := r.db.GetContext(ctx2, &acc, `
		INSERT INTO accounts (id, email, role)
		VALUES (gen_random_uuid(), $1, $2)
		RETURNING id, email, role, minutes_balance, created_at, updated_at
	`, email, role)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return Account{}, ErrDuplicateEmail
		}
		return Account{}, fmt.Errorf("create account: %w", err)
	}
	return acc, nil
}

func (r *SQLRepository) Get(ctx context.Context, id uuid.UUID) (Account, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var acc Account
	err := r.db.GetContext(ctx2, &acc, `
		SELECT id, email, role, minutes_balance, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	return acc, nil
}

func (r *SQLRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var exists bool
	err := r.db.GetContext(ctx2, &exists, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, id)
	if err != nil {
		return false, fmt.Errorf("account exists: %w", err)
	}
	return exists, nil
}
