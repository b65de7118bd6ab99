package account

import (
	"time"

	"github.com/google/uuid"
)

// Account is a student (or admin) known to the billing engine.
// MinutesBalance is the cached balance: derived from the ledger,
// refreshed transactionally, never the source of truth.
type Account struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Email          string    `db:"email" json:"email"`
	Role           string    `db:"role" json:"role"`
	MinutesBalance int64     `db:"minutes_balance" json:"minutes_balance"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
