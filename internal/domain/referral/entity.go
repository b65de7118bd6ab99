package referral

import (
	"time"

	"github.com/google/uuid"
)

// Status is the referral record state machine: pending goes to rewarded or
// blocked, both terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRewarded Status = "rewarded"
	StatusBlocked  Status = "blocked"
)

// Record links a referred signup to its referrer. Exactly one pair of
// ledger transactions is emitted when a record transitions to rewarded.
type Record struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	ReferrerID      uuid.UUID  `db:"referrer_id" json:"referrer_id"`
	ReferredID      uuid.UUID  `db:"referred_id" json:"referred_id"`
	Code            string     `db:"code" json:"code"`
	Status          Status     `db:"status" json:"status"`
	ReferrerMinutes int64      `db:"referrer_minutes" json:"referrer_minutes"`
	ReferredMinutes int64      `db:"referred_minutes" json:"referred_minutes"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	RewardedAt      *time.Time `db:"rewarded_at" json:"rewarded_at,omitempty"`
}
