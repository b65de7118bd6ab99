package pricing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tier is one discount bracket for cash deposits. Admin-managed; the wallet
// service only reads tiers. Tiers are deactivated, never deleted.
type Tier struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	MinAmount       decimal.Decimal `db:"min_amount" json:"min_amount"`
	DiscountPercent int64           `db:"discount_percent" json:"discount_percent"`
	IsActive        bool            `db:"is_active" json:"is_active"`
	SortOrder       int             `db:"sort_order" json:"sort_order"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}
