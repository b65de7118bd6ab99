package usage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/filippmiller/myaitutor-sub000/internal/domain/ledger"
	"github.com/filippmiller/myaitutor-sub000/internal/domain/pricing"
)

// WalletCharger is the slice of the wallet service this package needs. The
// usage service never appends ledger rows itself.
type WalletCharger interface {
	ChargeUsage(ctx context.Context, accountID uuid.UUID, minutes int64, sessionID uuid.UUID) (ledger.Transaction, bool, error)
}

// AccountChecker verifies that an account exists before a free session is
// recorded (billed sessions get the check from the ledger row lock).
type AccountChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service struct {
	repo     Repository
	wallet   WalletCharger
	accounts AccountChecker
	engine   *pricing.Engine
}

func NewService(repo Repository, wallet WalletCharger, accounts AccountChecker, engine *pricing.Engine) *Service {
	return &Service{repo: repo, wallet: wallet, accounts: accounts, engine: engine}
}

// RecordSession bills a finished session. Any positive duration bills at
// least one minute; a zero-length session is recorded as free. The debit is
// not gated on available balance: a session always completes, even if it
// drives the balance negative.
//
// sessionID is the voice pipeline's session identifier and doubles as the
// idempotency key: a retried teardown resumes the original session instead
// of billing twice. Pass uuid.Nil to have one generated.
func (s *Service) RecordSession(ctx context.Context, accountID, sessionID uuid.UUID, startedAt, endedAt time.Time) (Session, error) {
	if endedAt.Before(startedAt) {
		return Session{}, ErrInvalidRange
	}

	if ok, err := s.accounts.Exists(ctx, accountID); err != nil {
		return Session{}, err
	} else if !ok {
		return Session{}, ErrAccountNotFound
	}

	if sessionID == uuid.Nil {
		sessionID = uuid.New()
	}

	durationSeconds := int64(endedAt.Sub(startedAt) / time.Second)
	billedMinutes := int64(0)
	if durationSeconds > 0 {
		billedMinutes = (durationSeconds + 59) / 60
	}

	session := Session{
		ID:              sessionID,
		AccountID:       accountID,
		StartedAt:       startedAt,
		EndedAt:         endedAt,
		DurationSeconds: durationSeconds,
		BilledMinutes:   billedMinutes,
		BilledAmount:    s.engine.Cash(billedMinutes),
		BillingStatus:   StatusPending,
		Tariff: Tariff{
			RatePerMinute: s.engine.BaseRate(),
			Currency:      s.engine.Currency(),
			CapturedAt:    time.Now().UTC(),
		},
	}
	session.MarshalTariff()

	stored, created, err := s.repo.Create(ctx, session)
	if err != nil {
		return Session{}, err
	}
	if !created && stored.BillingStatus != StatusPending && stored.BillingStatus != StatusFailed {
		// Retried teardown for an already settled session.
		log.Debug().Str("session_id", sessionID.String()).Str("status", string(stored.BillingStatus)).Msg("session already settled")
		return stored, nil
	}

	if stored.BilledMinutes == 0 {
		if err := s.repo.SetStatus(ctx, stored.ID, StatusFree); err != nil {
			return Session{}, err
		}
		stored.BillingStatus = StatusFree
		return stored, nil
	}

	if _, _, err := s.wallet.ChargeUsage(ctx, accountID, stored.BilledMinutes, stored.ID); err != nil {
		if setErr := s.repo.SetStatus(ctx, stored.ID, StatusFailed); setErr != nil {
			log.Error().Err(setErr).Str("session_id", stored.ID.String()).Msg("failed to mark session failed")
		}
		return Session{}, err
	}

	if err := s.repo.SetStatus(ctx, stored.ID, StatusBilled); err != nil {
		return Session{}, err
	}
	stored.BillingStatus = StatusBilled

	log.Info().
		Str("account_id", accountID.String()).
		Str("session_id", stored.ID.String()).
		Int64("duration_seconds", durationSeconds).
		Int64("billed_minutes", stored.BilledMinutes).
		Msg("session recorded")
	return stored, nil
}

func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (Session, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListSessions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Session, error) {
	return s.repo.ListByAccount(ctx, accountID, limit, offset)
}
