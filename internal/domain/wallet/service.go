package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/filippmiller/myaitutor-sub000/internal/domain/ledger"
	"github.com/filippmiller/myaitutor-sub000/internal/domain/pricing"
)

// Service is the only writer path into the ledger. Every credit and debit
// in the system goes through one of its methods.
type Service struct {
	store        ledger.Store
	tiers        pricing.Repository
	engine       *pricing.Engine
	trialMinutes int64
}

func NewService(store ledger.Store, tiers pricing.Repository, engine *pricing.Engine, trialMinutes int64) *Service {
	return &Service{
		store:        store,
		tiers:        tiers,
		engine:       engine,
		trialMinutes: trialMinutes,
	}
}

// GetBalance is the authoritative read path: it recomputes the balance from
// the ledger and refreshes the cache in the same transaction. The cache is
// never trusted blindly here.
func (s *Service) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	balance, err := s.store.Reconcile(ctx, accountID)
	if err != nil {
		return 0, mapErr(err)
	}
	return balance, nil
}

// GrantTrial credits the trial bonus exactly once per account. Repeated
// calls return the original trial transaction and never error.
func (s *Service) GrantTrial(ctx context.Context, accountID uuid.UUID) (ledger.Transaction, error) {
	tx, created, err := s.store.AppendTrial(ctx, ledger.Entry{
		AccountID:    accountID,
		Kind:         ledger.KindTrial,
		MinutesDelta: s.trialMinutes,
		Source:       "system",
		Reason:       "free trial minutes",
	})
	if err != nil {
		return ledger.Transaction{}, mapErr(err)
	}
	if created {
		log.Info().Str("account_id", accountID.String()).Int64("minutes", s.trialMinutes).Msg("trial granted")
	}
	return tx, nil
}

// Deposit converts a confirmed cash amount to minutes via the pricing
// engine and appends a deposit transaction carrying both figures.
func (s *Service) Deposit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (ledger.Transaction, error) {
	if amount.Sign() <= 0 {
		return ledger.Transaction{}, ErrInvalidAmount
	}

	tiers, err := s.tiers.ListActive(ctx)
	if err != nil {
		return ledger.Transaction{}, err
	}

	tier := s.engine.ResolveTier(tiers, amount)
	minutes := s.engine.Minutes(amount, tier)
	if minutes <= 0 {
		return ledger.Transaction{}, ErrAmountTooSmall
	}

	var discount int64
	if tier != nil {
		discount = tier.DiscountPercent
	}

	tx, err := s.store.Append(ctx, ledger.Entry{
		AccountID:    accountID,
		Kind:         ledger.KindDeposit,
		MinutesDelta: minutes,
		CashAmount:   &amount,
		Source:       "payment",
		Reason: fmt.Sprintf("deposit %s %s at %s/min (%d%% off)",
			amount.StringFixed(2), s.engine.Currency(), s.engine.EffectiveRate(tier).String(), discount),
	})
	if err != nil {
		return ledger.Transaction{}, mapErr(err)
	}

	log.Info().
		Str("account_id", accountID.String()).
		Str("amount", amount.StringFixed(2)).
		Int64("minutes", minutes).
		Int64("discount_percent", discount).
		Msg("deposit applied")
	return tx, nil
}

// Gift is an unconditional admin credit. Deliberately not idempotent:
// each call is an explicit admin action and produces its own credit.
func (s *Service) Gift(ctx context.Context, accountID uuid.UUID, minutes int64, reason string, adminID uuid.UUID) (ledger.Transaction, error) {
	if minutes <= 0 {
		return ledger.Transaction{}, ErrInvalidAmount
	}
	if reason == "" {
		reason = "admin gift"
	}

	ref := adminID.String()
	tx, err := s.store.Append(ctx, ledger.Entry{
		AccountID:    accountID,
		Kind:         ledger.KindGift,
		MinutesDelta: minutes,
		Source:       "admin",
		SourceRef:    &ref,
		Reason:       reason,
	})
	if err != nil {
		return ledger.Transaction{}, mapErr(err)
	}

	log.Info().
		Str("account_id", accountID.String()).
		Str("admin_id", adminID.String()).
		Int64("minutes", minutes).
		Msg("gift applied")
	return tx, nil
}

// Adjust appends a manual correction row. The ledger is append-only, so
// mistakes are fixed by compensating entries, never by editing history.
func (s *Service) Adjust(ctx context.Context, accountID uuid.UUID, delta int64, reason string) (ledger.Transaction, error) {
	if delta == 0 {
		return ledger.Transaction{}, ErrZeroAdjustment
	}
	if reason == "" {
		reason = "manual adjustment"
	}

	tx, err := s.store.Append(ctx, ledger.Entry{
		AccountID:    accountID,
		Kind:         ledger.KindAdjustment,
		MinutesDelta: delta,
		Source:       "admin",
		Reason:       reason,
	})
	if err != nil {
		return ledger.Transaction{}, mapErr(err)
	}

	log.Info().Str("account_id", accountID.String()).Int64("delta", delta).Msg("adjustment applied")
	return tx, nil
}

// ChargeUsage debits billed minutes for a metered session. The session id
// keys the usage-once guard: a retried teardown returns the original debit
// with charged=false. Balances may go negative; usage is never rejected for
// insufficient minutes.
func (s *Service) ChargeUsage(ctx context.Context, accountID uuid.UUID, minutes int64, sessionID uuid.UUID) (ledger.Transaction, bool, error) {
	if minutes <= 0 {
		return ledger.Transaction{}, false, ErrInvalidAmount
	}

	ref := sessionID.String()
	tx, charged, err := s.store.AppendUsage(ctx, ledger.Entry{
		AccountID:    accountID,
		Kind:         ledger.KindUsage,
		MinutesDelta: -minutes,
		Source:       "session",
		SourceRef:    &ref,
		Reason:       fmt.Sprintf("tutoring session, %d min", minutes),
	})
	if err != nil {
		return ledger.Transaction{}, false, mapErr(err)
	}

	if charged {
		log.Info().
			Str("account_id", accountID.String()).
			Str("session_id", ref).
			Int64("minutes", minutes).
			Msg("usage charged")
	} else {
		log.Debug().Str("session_id", ref).Msg("usage already charged, returning existing debit")
	}
	return tx, charged, nil
}

// RewardReferralTx appends the paired referral credits inside the caller's
// transaction, so the referral status flip and both ledger rows commit or
// roll back together.
func (s *Service) RewardReferralTx(ctx context.Context, dbtx *sqlx.Tx, referralID uuid.UUID, referrerID, referredID uuid.UUID, referrerMinutes, referredMinutes int64) (ledger.Transaction, ledger.Transaction, error) {
	ref := referralID.String()

	reward, welcome, err := s.store.AppendPairTx(ctx, dbtx,
		ledger.Entry{
			AccountID:    referrerID,
			Kind:         ledger.KindReferralReward,
			MinutesDelta: referrerMinutes,
			Source:       "referral",
			SourceRef:    &ref,
			Reason:       "referral reward",
		},
		ledger.Entry{
			AccountID:    referredID,
			Kind:         ledger.KindReferralWelcome,
			MinutesDelta: referredMinutes,
			Source:       "referral",
			SourceRef:    &ref,
			Reason:       "referral welcome bonus",
		})
	if err != nil {
		return ledger.Transaction{}, ledger.Transaction{}, mapErr(err)
	}
	return reward, welcome, nil
}

// BeginTx exposes a store transaction for composed writes (referral
// confirmation). Keeps the wallet service as the single ledger gateway.
func (s *Service) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return s.store.BeginTx(ctx)
}

func (s *Service) ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]ledger.Transaction, error) {
	return s.store.List(ctx, accountID, limit, offset)
}

// Reconcile repairs every cached balance that drifted from its ledger sum.
// Run periodically by the reconciler worker and on demand by admins.
func (s *Service) Reconcile(ctx context.Context) (int64, error) {
	repaired, err := s.store.ReconcileAll(ctx)
	if err != nil {
		return 0, err
	}
	if repaired > 0 {
		log.Warn().Int64("accounts", repaired).Msg("balance cache drift repaired")
	}
	return repaired, nil
}

func mapErr(err error) error {
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return ErrAccountNotFound
	}
	return err
}
