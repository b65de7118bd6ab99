package pricing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	queryTimeout     = 3 * time.Second
	activeTiersKey   = "pricing:tiers:active"
	activeTiersTTL   = 5 * time.Minute
)

type Repository interface {
	ListActive(ctx context.Context) ([]Tier, error)
	List(ctx context.Context, activeOnly bool) ([]Tier, error)
	Get(ctx context.Context, id uuid.UUID) (Tier, error)
	Create(ctx context.Context, minAmount decimal.Decimal, discountPercent int64, sortOrder int) (Tier, error)
	Update(ctx context.Context, id uuid.UUID, minAmount decimal.Decimal, discountPercent int64, sortOrder int) (Tier, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (Tier, error)
}

// SQLRepository stores tiers in PostgreSQL with a short-lived Redis cache in
// front of the active set. Tiers are admin-managed config: slow to change,
// read on every deposit.
type SQLRepository struct {
	db    *sqlx.DB
	cache *redis.Client
}

func NewRepository(db *sqlx.DB, cache *redis.Client) *SQLRepository {
	return &SQLRepository{db: db, cache: cache}
}

const tierColumns = `id, min_amount, discount_percent, is_active, sort_order, created_at`

func (r *SQLRepository) ListActive(ctx context.Context) ([]Tier, error) {
	if tiers, ok := r.cachedActive(ctx); ok {
		return tiers, nil
	}

	tiers, err := r.List(ctx, true)
	if err != nil {
		return nil, err
	}

	r.storeActive(ctx, tiers)
	return tiers, nil
}

func (r *SQLRepository) List(ctx context.Context, activeOnly bool) ([]Tier, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + tierColumns + ` FROM pricing_tiers`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY min_amount ASC, sort_order ASC`

	tiers := make([]Tier, 0)
	if err := r.db.SelectContext(ctx2, &tiers, query); err != nil {
		return nil, fmt.Errorf("%w: list tiers", ErrInternal)
	}
	return tiers, nil
}

func (r *SQLRepository) Get(ctx context.Context, id uuid.UUID) (Tier, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var tier Tier
	err := r.db.GetContext(ctx2, &tier, `SELECT `+tierColumns+` FROM pricing_tiers WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Tier{}, ErrTierNotFound
	}
	if err != nil {
		return Tier{}, fmt.Errorf("%w: get tier", ErrInternal)
	}
	return tier, nil
}

func (r *SQLRepository) Create(ctx context.Context, minAmount decimal.Decimal, discountPercent int64, sortOrder int) (Tier, error) {
	if err := checkTier(minAmount, discountPercent); err != nil {
		return Tier{}, err
	}

	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var tier Tier
	err := r.db.GetContext(ctx2, &tier, `
		INSERT INTO pricing_tiers (id, min_amount, discount_percent, is_active, sort_order)
		VALUES (gen_random_uuid(), $1, $2, true, $3)
		RETURNING `+tierColumns,
		minAmount, discountPercent, sortOrder)
	if err != nil {
		return Tier{}, fmt.Errorf("%w: create tier", ErrInternal)
	}

	r.invalidate(ctx2)
	return tier, nil
}

func (r *SQLRepository) Update(ctx context.Context, id uuid.UUID, minAmount decimal.Decimal, discountPercent int64, sortOrder int) (Tier, error) {
	if err := checkTier(minAmount, discountPercent); err != nil {
		return Tier{}, err
	}

	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var tier Tier
	err := r.db.GetContext(ctx2, &tier, `
		UPDATE pricing_tiers
		SET min_amount = $2, discount_percent = $3, sort_order = $4
		WHERE id = $1
		RETURNING `+tierColumns,
		id, minAmount, discountPercent, sortOrder)
	if errors.Is(err, sql.ErrNoRows) {
		return Tier{}, ErrTierNotFound
	}
	if err != nil {
		return Tier{}, fmt.Errorf("%w: update tier", ErrInternal)
	}

	r.invalidate(ctx2)
	return tier, nil
}

func (r *SQLRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) (Tier, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var tier Tier
	err := r.db.GetContext(ctx2, &tier, `
		UPDATE pricing_tiers
		SET is_active = $2
		WHERE id = $1
		RETURNING `+tierColumns,
		id, active)
	if errors.Is(err, sql.ErrNoRows) {
		return Tier{}, ErrTierNotFound
	}
	if err != nil {
		return Tier{}, fmt.Errorf("%w: set tier active", ErrInternal)
	}

	r.invalidate(ctx2)
	return tier, nil
}

func (r *SQLRepository) cachedActive(ctx context.Context) ([]Tier, bool) {
	if r.cache == nil {
		return nil, false
	}
	raw, err := r.cache.Get(ctx, activeTiersKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Msg("tier cache read failed")
		}
		return nil, false
	}
	var tiers []Tier
	if err := json.Unmarshal(raw, &tiers); err != nil {
		return nil, false
	}
	return tiers, true
}

func (r *SQLRepository) storeActive(ctx context.Context, tiers []Tier) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(tiers)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, activeTiersKey, raw, activeTiersTTL).Err(); err != nil {
		log.Warn().Err(err).Msg("tier cache write failed")
	}
}

func (r *SQLRepository) invalidate(ctx context.Context) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Del(ctx, activeTiersKey).Err(); err != nil {
		log.Warn().Err(err).Msg("tier cache invalidation failed")
	}
}

func checkTier(minAmount decimal.Decimal, discountPercent int64) error {
	if minAmount.Sign() < 0 {
		return fmt.Errorf("%w: negative min_amount", ErrInvalidTier)
	}
	if discountPercent < 0 || discountPercent > 99 {
		return ErrInvalidDiscount
	}
	return nil
}
