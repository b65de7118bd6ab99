package referral

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/filippmiller/myaitutor-sub000/internal/domain/ledger"
)

// WalletRewarder is the slice of the wallet service that appends the paired
// reward transactions. Referral code never writes the ledger directly.
type WalletRewarder interface {
	RewardReferralTx(ctx context.Context, dbtx *sqlx.Tx, referralID uuid.UUID, referrerID, referredID uuid.UUID, referrerMinutes, referredMinutes int64) (ledger.Transaction, ledger.Transaction, error)
}

type AccountChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service struct {
	repo            Repository
	wallet          WalletRewarder
	accounts        AccountChecker
	referrerMinutes int64
	referredMinutes int64
}

func NewService(repo Repository, wallet WalletRewarder, accounts AccountChecker, referrerMinutes, referredMinutes int64) *Service {
	return &Service{
		repo:            repo,
		wallet:          wallet,
		accounts:        accounts,
		referrerMinutes: referrerMinutes,
		referredMinutes: referredMinutes,
	}
}

// GenerateCode returns the account's stable referral code.
func (s *Service) GenerateCode(accountID uuid.UUID) string {
	return Code(accountID)
}

// RegisterSignup links a new signup to its referrer and immediately pays
// out. A malformed code, an unknown referrer, or a self-referral is a
// silent no-op: a bad code must never break registration.
func (s *Service) RegisterSignup(ctx context.Context, newAccountID uuid.UUID, code string) {
	referrerID, err := ParseCode(code)
	if err != nil {
		log.Debug().Str("code", code).Msg("ignoring malformed referral code")
		return
	}
	if referrerID == newAccountID {
		log.Debug().Str("account_id", newAccountID.String()).Msg("ignoring self-referral")
		return
	}

	if ok, err := s.accounts.Exists(ctx, referrerID); err != nil || !ok {
		if err != nil {
			log.Error().Err(err).Msg("referral referrer lookup failed")
		} else {
			log.Debug().Str("code", code).Msg("ignoring referral code for unknown account")
		}
		return
	}

	rec, err := s.repo.Create(ctx, referrerID, newAccountID, code, s.referrerMinutes, s.referredMinutes)
	if err != nil {
		if err == ErrDuplicatePair {
			log.Debug().
				Str("referrer_id", referrerID.String()).
				Str("referred_id", newAccountID.String()).
				Msg("referral pair already registered")
			return
		}
		log.Error().Err(err).Msg("failed to create referral record")
		return
	}

	if err := s.Confirm(ctx, rec.ID); err != nil {
		// The pending record stays; confirmation can be retried.
		log.Error().Err(err).Str("referral_id", rec.ID.String()).Msg("referral confirmation failed")
	}
}

// Confirm pays out a pending referral: the status flip and both ledger
// credits commit in one database transaction. Confirming a rewarded or
// blocked record is a no-op; the transition is terminal either way.
func (s *Service) Confirm(ctx context.Context, recordID uuid.UUID) error {
	dbtx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer dbtx.Rollback()

	rec, claimed, err := s.repo.ClaimRewardTx(ctx, dbtx, recordID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	if _, _, err := s.wallet.RewardReferralTx(ctx, dbtx, rec.ID, rec.ReferrerID, rec.ReferredID, rec.ReferrerMinutes, rec.ReferredMinutes); err != nil {
		return err
	}

	if err := dbtx.Commit(); err != nil {
		return err
	}

	log.Info().
		Str("referral_id", rec.ID.String()).
		Str("referrer_id", rec.ReferrerID.String()).
		Str("referred_id", rec.ReferredID.String()).
		Msg("referral rewarded")
	return nil
}

// Block is the admin action for abusive referrals. Only legal from pending;
// no transactions are emitted and the state is terminal.
func (s *Service) Block(ctx context.Context, recordID uuid.UUID) (Record, error) {
	rec, err := s.repo.Block(ctx, recordID)
	if err != nil {
		return Record{}, err
	}
	log.Info().Str("referral_id", rec.ID.String()).Msg("referral blocked")
	return rec, nil
}

func (s *Service) ListByReferrer(ctx context.Context, referrerID uuid.UUID, limit, offset int) ([]Record, error) {
	return s.repo.ListByReferrer(ctx, referrerID, limit, offset)
}
