package usage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingStatus tracks the lifecycle of a metered session. Sessions are
// immutable once billed or free.
type BillingStatus string

const (
	StatusPending BillingStatus = "pending"
	StatusBilled  BillingStatus = "billed"
	StatusFree    BillingStatus = "free"
	StatusFailed  BillingStatus = "failed"
)

// Tariff is the rate snapshot captured at charge time. Later rate changes
// never alter how a historical session is displayed.
type Tariff struct {
	RatePerMinute decimal.Decimal `json:"rate_per_minute"`
	Currency      string          `json:"currency"`
	CapturedAt    time.Time       `json:"captured_at"`
}

// Session is one metered tutoring session, recorded at teardown.
type Session struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	AccountID       uuid.UUID       `db:"account_id" json:"account_id"`
	StartedAt       time.Time       `db:"started_at" json:"started_at"`
	EndedAt         time.Time       `db:"ended_at" json:"ended_at"`
	DurationSeconds int64           `db:"duration_seconds" json:"duration_seconds"`
	BilledMinutes   int64           `db:"billed_minutes" json:"billed_minutes"`
	BilledAmount    decimal.Decimal `db:"billed_amount" json:"billed_amount"`
	BillingStatus   BillingStatus   `db:"billing_status" json:"billing_status"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`

	// JSONB column — raw DB storage
	TariffRaw []byte `db:"tariff" json:"-"`

	// Parsed snapshot — populated after scanning
	Tariff Tariff `db:"-" json:"tariff"`
}

// ParseTariff parses the raw JSONB snapshot. Must be called after DB scan.
func (s *Session) ParseTariff() {
	if len(s.TariffRaw) > 0 {
		_ = json.Unmarshal(s.TariffRaw, &s.Tariff)
	}
}

// MarshalTariff serializes the snapshot for storage.
func (s *Session) MarshalTariff() {
	raw, err := json.Marshal(s.Tariff)
	if err == nil {
		s.TariffRaw = raw
	}
}
