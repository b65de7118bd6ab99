package pricing

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Engine converts deposited cash into minutes. The base rate is the price
// of one minute before any tier discount.
type Engine struct {
	baseRate decimal.Decimal
	currency string
}

func NewEngine(baseRate decimal.Decimal, currency string) *Engine {
	return &Engine{baseRate: baseRate, currency: currency}
}

func (e *Engine) BaseRate() decimal.Decimal { return e.baseRate }
func (e *Engine) Currency() string          { return e.currency }

// ResolveTier selects the active tier with the greatest min_amount that is
// <= amount. On equal min_amount the higher discount wins, then the higher
// sort_order. Nil means no tier applies (zero discount).
func (e *Engine) ResolveTier(tiers []Tier, amount decimal.Decimal) *Tier {
	var best *Tier
	for i := range tiers {
		t := &tiers[i]
		if !t.IsActive || t.MinAmount.GreaterThan(amount) {
			continue
		}
		if best == nil {
			best = t
			continue
		}
		switch best.MinAmount.Cmp(t.MinAmount) {
		case -1:
			best = t
		case 0:
			if t.DiscountPercent > best.DiscountPercent ||
				(t.DiscountPercent == best.DiscountPercent && t.SortOrder > best.SortOrder) {
				best = t
			}
		}
	}
	return best
}

// EffectiveRate is base_rate * (1 - discount/100) for the given tier.
// A nil tier means no discount.
func (e *Engine) EffectiveRate(tier *Tier) decimal.Decimal {
	if tier == nil {
		return e.baseRate
	}
	factor := hundred.Sub(decimal.NewFromInt(tier.DiscountPercent)).Div(hundred)
	return e.baseRate.Mul(factor)
}

// Minutes is floor(amount / effective_rate). Fractional minutes are never
// credited.
func (e *Engine) Minutes(amount decimal.Decimal, tier *Tier) int64 {
	rate := e.EffectiveRate(tier)
	if rate.Sign() <= 0 || amount.Sign() <= 0 {
		return 0
	}
	return amount.DivRound(rate, 8).Truncate(0).IntPart()
}

// Cash is minutes * base_rate, the informational cash equivalent recorded
// on usage sessions. Usage is charged in minutes, never in cash.
func (e *Engine) Cash(minutes int64) decimal.Decimal {
	return e.baseRate.Mul(decimal.NewFromInt(minutes))
}
