package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind classifies a ledger transaction. The set is closed: the store
// rejects any kind outside it, so reward/debit logic can switch exhaustively.
type Kind string

const (
	KindTrial           Kind = "trial"
	KindDeposit         Kind = "deposit"
	KindGift            Kind = "gift"
	KindUsage           Kind = "usage"
	KindReferralReward  Kind = "referral_reward"
	KindReferralWelcome Kind = "referral_welcome"
	KindAdjustment      Kind = "adjustment"
)

// Valid reports whether k is a known transaction kind.
func (k Kind) Valid() bool {
	switch k {
	case KindTrial, KindDeposit, KindGift, KindUsage, KindReferralReward, KindReferralWelcome, KindAdjustment:
		return true
	}
	return false
}

// Entry is the input for an append. CashAmount is set only for deposits.
type Entry struct {
	AccountID    uuid.UUID
	Kind         Kind
	MinutesDelta int64
	CashAmount   *decimal.Decimal
	Source       string
	SourceRef    *string
	Reason       string
}

// Transaction is one immutable ledger row. Rows are never updated or
// deleted; corrections are appended as adjustment rows.
type Transaction struct {
	ID           uuid.UUID        `db:"id" json:"id"`
	AccountID    uuid.UUID        `db:"account_id" json:"account_id"`
	Kind         Kind             `db:"kind" json:"kind"`
	MinutesDelta int64            `db:"minutes_delta" json:"minutes_delta"`
	CashAmount   *decimal.Decimal `db:"cash_amount" json:"cash_amount,omitempty"`
	Source       string           `db:"source" json:"source"`
	SourceRef    *string          `db:"source_ref" json:"source_ref,omitempty"`
	Reason       string           `db:"reason" json:"reason"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
}
