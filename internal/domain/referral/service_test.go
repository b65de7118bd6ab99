package referral_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/filippmiller/myaitutor-sub000/internal/domain/ledger"
	"github.com/filippmiller/myaitutor-sub000/internal/domain/referral"
)

// recordingRepo tracks Create calls so tests can assert which signup paths
// reach the database. Transactional payout paths are covered by the live
// database tests.
type recordingRepo struct {
	created []referral.Record
	pairs   map[string]bool
}

func newRecordingRepo() *recordingRepo {
	return &recordingRepo{pairs: make(map[string]bool)}
}

func (r *recordingRepo) Create(_ context.Context, referrerID, referredID uuid.UUID, code string, referrerMinutes, referredMinutes int64) (referral.Record, error) {
	key := referrerID.String() + "/" + referredID.String()
	if r.pairs[key] {
		return referral.Record{}, referral.ErrDuplicatePair
	}
	r.pairs[key] = true
	rec := referral.Record{
		ID:              uuid.New(),
		ReferrerID:      referrerID,
		ReferredID:      referredID,
		Code:            code,
		Status:          referral.StatusPending,
		ReferrerMinutes: referrerMinutes,
		ReferredMinutes: referredMinutes,
		CreatedAt:       time.Now(),
	}
	r.created = append(r.created, rec)
	return rec, nil
}

func (r *recordingRepo) Get(_ context.Context, id uuid.UUID) (referral.Record, error) {
	for _, rec := range r.created {
		if rec.ID == id {
			return rec, nil
		}
	}
	return referral.Record{}, referral.ErrRecordNotFound
}

func (r *recordingRepo) ListByReferrer(_ context.Context, referrerID uuid.UUID, limit, offset int) ([]referral.Record, error) {
	var out []referral.Record
	for _, rec := range r.created {
		if rec.ReferrerID == referrerID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *recordingRepo) ClaimRewardTx(_ context.Context, _ *sqlx.Tx, id uuid.UUID) (referral.Record, bool, error) {
	return referral.Record{}, false, nil
}

func (r *recordingRepo) Block(_ context.Context, id uuid.UUID) (referral.Record, error) {
	return referral.Record{}, referral.ErrRecordNotFound
}

func (r *recordingRepo) BeginTx(context.Context) (*sqlx.Tx, error) {
	// Payout needs a real database transaction; signal the service to leave
	// the record pending.
	return nil, errors.New("no database in unit tests")
}

type noopWallet struct{ calls int }

func (w *noopWallet) RewardReferralTx(_ context.Context, _ *sqlx.Tx, _ uuid.UUID, _, _ uuid.UUID, _, _ int64) (ledger.Transaction, ledger.Transaction, error) {
	w.calls++
	return ledger.Transaction{}, ledger.Transaction{}, nil
}

type staticAccounts struct{ known map[uuid.UUID]bool }

func (a *staticAccounts) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	return a.known[id], nil
}

func newTestService(repo *recordingRepo, wallet *noopWallet, accounts ...uuid.UUID) *referral.Service {
	known := make(map[uuid.UUID]bool)
	for _, id := range accounts {
		known[id] = true
	}
	return referral.NewService(repo, wallet, &staticAccounts{known: known}, 60, 60)
}

func TestRegisterSignupIgnoresMalformedCode(t *testing.T) {
	repo := newRecordingRepo()
	wallet := &noopWallet{}
	svc := newTestService(repo, wallet)

	// None of these may create a record or reach the wallet, and none may
	// panic: a bad code must never break registration.
	for _, code := range []string{"", "not-a-code", "!!!!", "AAAA"} {
		svc.RegisterSignup(context.Background(), uuid.New(), code)
	}

	if len(repo.created) != 0 {
		t.Fatalf("expected no referral records, got %d", len(repo.created))
	}
	if wallet.calls != 0 {
		t.Fatalf("expected no wallet calls, got %d", wallet.calls)
	}
}

func TestRegisterSignupIgnoresSelfReferral(t *testing.T) {
	accountID := uuid.New()
	repo := newRecordingRepo()
	svc := newTestService(repo, &noopWallet{}, accountID)

	svc.RegisterSignup(context.Background(), accountID, referral.Code(accountID))

	if len(repo.created) != 0 {
		t.Fatal("self-referral must not create a record")
	}
}

func TestRegisterSignupIgnoresUnknownReferrer(t *testing.T) {
	repo := newRecordingRepo()
	svc := newTestService(repo, &noopWallet{}) // no known accounts

	// Well-formed code, but the referrer does not exist.
	svc.RegisterSignup(context.Background(), uuid.New(), referral.Code(uuid.New()))

	if len(repo.created) != 0 {
		t.Fatal("unknown referrer must not create a record")
	}
}

func TestRegisterSignupCreatesPendingRecord(t *testing.T) {
	referrerID := uuid.New()
	newcomerID := uuid.New()
	repo := newRecordingRepo()
	svc := newTestService(repo, &noopWallet{}, referrerID)

	svc.RegisterSignup(context.Background(), newcomerID, referral.Code(referrerID))

	if len(repo.created) != 1 {
		t.Fatalf("expected one referral record, got %d", len(repo.created))
	}
	rec := repo.created[0]
	if rec.ReferrerID != referrerID || rec.ReferredID != newcomerID {
		t.Fatalf("record links wrong accounts: %+v", rec)
	}
	if rec.ReferrerMinutes != 60 || rec.ReferredMinutes != 60 {
		t.Fatalf("unexpected reward minutes: %+v", rec)
	}
}

func TestRegisterSignupIgnoresDuplicatePair(t *testing.T) {
	referrerID := uuid.New()
	newcomerID := uuid.New()
	repo := newRecordingRepo()
	svc := newTestService(repo, &noopWallet{}, referrerID)

	svc.RegisterSignup(context.Background(), newcomerID, referral.Code(referrerID))
	svc.RegisterSignup(context.Background(), newcomerID, referral.Code(referrerID))

	if len(repo.created) != 1 {
		t.Fatalf("expected a single record for the pair, got %d", len(repo.created))
	}
}

func TestCodeIsReusableAcrossSignups(t *testing.T) {
	referrerID := uuid.New()
	repo := newRecordingRepo()
	svc := newTestService(repo, &noopWallet{}, referrerID)

	code := svc.GenerateCode(referrerID)
	svc.RegisterSignup(context.Background(), uuid.New(), code)
	svc.RegisterSignup(context.Background(), uuid.New(), code)
	svc.RegisterSignup(context.Background(), uuid.New(), code)

	records, err := svc.ListByReferrer(context.Background(), referrerID, 10, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected three referrals from one code, got %d", len(records))
	}
}
