package wallet_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/filippmiller/myaitutor-sub000/internal/domain/ledger"
	"github.com/filippmiller/myaitutor-sub000/internal/domain/pricing"
	"github.com/filippmiller/myaitutor-sub000/internal/domain/wallet"
)

// fakeStore is an in-memory ledger.Store for service-level tests. The SQL
// implementation is covered separately against a live database.
type fakeStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]bool
	txs      []ledger.Transaction
}

func newFakeStore(accounts ...uuid.UUID) *fakeStore {
	s := &fakeStore{accounts: make(map[uuid.UUID]bool)}
	for _, id := range accounts {
		s.accounts[id] = true
	}
	return s
}

func (s *fakeStore) append(e ledger.Entry) (ledger.Transaction, error) {
	if !s.accounts[e.AccountID] {
		return ledger.Transaction{}, ledger.ErrAccountNotFound
	}
	if !e.Kind.Valid() {
		return ledger.Transaction{}, ledger.ErrInvalidKind
	}
	tx := ledger.Transaction{
		ID:           uuid.New(),
		AccountID:    e.AccountID,
		Kind:         e.Kind,
		MinutesDelta: e.MinutesDelta,
		CashAmount:   e.CashAmount,
		Source:       e.Source,
		SourceRef:    e.SourceRef,
		Reason:       e.Reason,
		CreatedAt:    time.Now(),
	}
	s.txs = append(s.txs, tx)
	return tx, nil
}

func (s *fakeStore) Append(_ context.Context, e ledger.Entry) (ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.append(e)
}

func (s *fakeStore) AppendTrial(_ context.Context, e ledger.Entry) (ledger.Transaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.txs {
		if tx.AccountID == e.AccountID && tx.Kind == ledger.KindTrial {
			return tx, false, nil
		}
	}
	tx, err := s.append(e)
	return tx, err == nil, err
}

func (s *fakeStore) AppendUsage(_ context.Context, e ledger.Entry) (ledger.Transaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.txs {
		if tx.Kind == ledger.KindUsage && tx.SourceRef != nil && e.SourceRef != nil && *tx.SourceRef == *e.SourceRef {
			return tx, false, nil
		}
	}
	tx, err := s.append(e)
	return tx, err == nil, err
}

func (s *fakeStore) AppendPairTx(_ context.Context, _ *sqlx.Tx, first, second ledger.Entry) (ledger.Transaction, ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.append(first)
	if err != nil {
		return ledger.Transaction{}, ledger.Transaction{}, err
	}
	b, err := s.append(second)
	if err != nil {
		return ledger.Transaction{}, ledger.Transaction{}, err
	}
	return a, b, nil
}

func (s *fakeStore) SumDeltas(_ context.Context, accountID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sum(accountID), nil
}

func (s *fakeStore) sum(accountID uuid.UUID) int64 {
	var sum int64
	for _, tx := range s.txs {
		if tx.AccountID == accountID {
			sum += tx.MinutesDelta
		}
	}
	return sum
}

func (s *fakeStore) List(_ context.Context, accountID uuid.UUID, limit, offset int) ([]ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.Transaction, 0)
	for i := len(s.txs) - 1; i >= 0; i-- {
		if s.txs[i].AccountID == accountID {
			out = append(out, s.txs[i])
		}
	}
	return out, nil
}

func (s *fakeStore) RefreshBalanceTx(_ context.Context, _ *sqlx.Tx, accountID uuid.UUID) (int64, error) {
	return s.SumDeltas(context.Background(), accountID)
}

func (s *fakeStore) Reconcile(_ context.Context, accountID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accounts[accountID] {
		return 0, ledger.ErrAccountNotFound
	}
	return s.sum(accountID), nil
}

func (s *fakeStore) ReconcileAll(_ context.Context) (int64, error) { return 0, nil }

func (s *fakeStore) BeginTx(_ context.Context) (*sqlx.Tx, error) { return nil, nil }

type fakeTierRepo struct {
	tiers []pricing.Tier
}

func (r *fakeTierRepo) ListActive(context.Context) ([]pricing.Tier, error) { return r.tiers, nil }
func (r *fakeTierRepo) List(_ context.Context, activeOnly bool) ([]pricing.Tier, error) {
	return r.tiers, nil
}
func (r *fakeTierRepo) Get(context.Context, uuid.UUID) (pricing.Tier, error) {
	return pricing.Tier{}, pricing.ErrTierNotFound
}
func (r *fakeTierRepo) Create(_ context.Context, minAmount decimal.Decimal, discountPercent int64, sortOrder int) (pricing.Tier, error) {
	t := pricing.Tier{ID: uuid.New(), MinAmount: minAmount, DiscountPercent: discountPercent, IsActive: true, SortOrder: sortOrder}
	r.tiers = append(r.tiers, t)
	return t, nil
}
func (r *fakeTierRepo) Update(_ context.Context, id uuid.UUID, _ decimal.Decimal, _ int64, _ int) (pricing.Tier, error) {
	return pricing.Tier{}, pricing.ErrTierNotFound
}
func (r *fakeTierRepo) SetActive(_ context.Context, id uuid.UUID, _ bool) (pricing.Tier, error) {
	return pricing.Tier{}, pricing.ErrTierNotFound
}

func newService(store *fakeStore, tiers ...pricing.Tier) *wallet.Service {
	engine := pricing.NewEngine(decimal.RequireFromString("5.00"), "USD")
	return wallet.NewService(store, &fakeTierRepo{tiers: tiers}, engine, 60)
}

func TestGrantTrialIdempotent(t *testing.T) {
	accountID := uuid.New()
	store := newFakeStore(accountID)
	svc := newService(store)

	first, err := svc.GrantTrial(context.Background(), accountID)
	if err != nil {
		t.Fatalf("first grant failed: %v", err)
	}
	if first.MinutesDelta != 60 || first.Kind != ledger.KindTrial {
		t.Fatalf("unexpected trial transaction: %+v", first)
	}

	for i := 0; i < 5; i++ {
		repeat, err := svc.GrantTrial(context.Background(), accountID)
		if err != nil {
			t.Fatalf("repeat grant failed: %v", err)
		}
		if repeat.ID != first.ID {
			t.Fatalf("expected the original trial transaction, got %s", repeat.ID)
		}
	}

	balance, err := svc.GetBalance(context.Background(), accountID)
	if err != nil {
		t.Fatalf("get balance failed: %v", err)
	}
	if balance != 60 {
		t.Fatalf("expected balance 60 after repeated grants, got %d", balance)
	}
	if len(store.txs) != 1 {
		t.Fatalf("expected exactly one ledger row, got %d", len(store.txs))
	}
}

func TestDepositTiering(t *testing.T) {
	accountID := uuid.New()
	store := newFakeStore(accountID)
	svc := newService(store, pricing.Tier{
		ID: uuid.New(), MinAmount: decimal.RequireFromString("1000"),
		DiscountPercent: 10, IsActive: true,
	})

	tx, err := svc.Deposit(context.Background(), accountID, decimal.RequireFromString("1000"))
	if err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	// 1000 at effective rate 4.50 buys floor(1000/4.50) = 222 minutes
	if tx.MinutesDelta != 222 {
		t.Fatalf("expected 222 minutes, got %d", tx.MinutesDelta)
	}
	if tx.Kind != ledger.KindDeposit {
		t.Fatalf("expected deposit kind, got %s", tx.Kind)
	}
	if tx.CashAmount == nil || !tx.CashAmount.Equal(decimal.RequireFromString("1000")) {
		t.Fatalf("expected cash amount 1000 on transaction, got %v", tx.CashAmount)
	}

	balance, _ := svc.GetBalance(context.Background(), accountID)
	if balance != 222 {
		t.Fatalf("expected balance 222, got %d", balance)
	}
}

func TestDepositWithoutTierUsesBaseRate(t *testing.T) {
	accountID := uuid.New()
	store := newFakeStore(accountID)
	svc := newService(store)

	tx, err := svc.Deposit(context.Background(), accountID, decimal.RequireFromString("100"))
	if err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if tx.MinutesDelta != 20 {
		t.Fatalf("expected 20 minutes at base rate, got %d", tx.MinutesDelta)
	}
}

func TestDepositRejectsBadAmounts(t *testing.T) {
	accountID := uuid.New()
	svc := newService(newFakeStore(accountID))

	if _, err := svc.Deposit(context.Background(), accountID, decimal.Zero); !errors.Is(err, wallet.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero, got %v", err)
	}
	if _, err := svc.Deposit(context.Background(), accountID, decimal.RequireFromString("-10")); !errors.Is(err, wallet.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative, got %v", err)
	}
	// 2.00 buys less than one minute at 5.00/min
	if _, err := svc.Deposit(context.Background(), accountID, decimal.RequireFromString("2.00")); !errors.Is(err, wallet.ErrAmountTooSmall) {
		t.Fatalf("expected ErrAmountTooSmall, got %v", err)
	}
}

func TestGiftIsNotIdempotent(t *testing.T) {
	accountID := uuid.New()
	adminID := uuid.New()
	store := newFakeStore(accountID)
	svc := newService(store)

	for i := 0; i < 3; i++ {
		if _, err := svc.Gift(context.Background(), accountID, 10, "compensation", adminID); err != nil {
			t.Fatalf("gift %d failed: %v", i, err)
		}
	}

	balance, _ := svc.GetBalance(context.Background(), accountID)
	if balance != 30 {
		t.Fatalf("expected 30 after three gifts, got %d", balance)
	}
	if len(store.txs) != 3 {
		t.Fatalf("expected three gift rows, got %d", len(store.txs))
	}
}

func TestAdjustRejectsZeroDelta(t *testing.T) {
	accountID := uuid.New()
	svc := newService(newFakeStore(accountID))

	if _, err := svc.Adjust(context.Background(), accountID, 0, "noop"); !errors.Is(err, wallet.ErrZeroAdjustment) {
		t.Fatalf("expected ErrZeroAdjustment, got %v", err)
	}
}

func TestAdjustAllowsNegativeDelta(t *testing.T) {
	accountID := uuid.New()
	store := newFakeStore(accountID)
	svc := newService(store)

	tx, err := svc.Adjust(context.Background(), accountID, -15, "correcting double gift")
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if tx.Kind != ledger.KindAdjustment || tx.MinutesDelta != -15 {
		t.Fatalf("unexpected adjustment: %+v", tx)
	}
}

func TestChargeUsageAllowsNegativeBalance(t *testing.T) {
	accountID := uuid.New()
	store := newFakeStore(accountID)
	svc := newService(store)

	// Balance is zero; the charge must still succeed.
	_, charged, err := svc.ChargeUsage(context.Background(), accountID, 8, uuid.New())
	if err != nil {
		t.Fatalf("charge failed: %v", err)
	}
	if !charged {
		t.Fatal("expected a fresh charge")
	}

	balance, err := svc.GetBalance(context.Background(), accountID)
	if err != nil {
		t.Fatalf("get balance failed: %v", err)
	}
	if balance != -8 {
		t.Fatalf("expected balance -8, got %d", balance)
	}
}

func TestChargeUsageOncePerSession(t *testing.T) {
	accountID := uuid.New()
	sessionID := uuid.New()
	store := newFakeStore(accountID)
	svc := newService(store)

	first, charged, err := svc.ChargeUsage(context.Background(), accountID, 5, sessionID)
	if err != nil || !charged {
		t.Fatalf("first charge: charged=%v err=%v", charged, err)
	}

	second, charged, err := svc.ChargeUsage(context.Background(), accountID, 5, sessionID)
	if err != nil {
		t.Fatalf("retried charge failed: %v", err)
	}
	if charged {
		t.Fatal("expected retried charge to return the existing debit")
	}
	if second.ID != first.ID {
		t.Fatalf("expected original debit %s, got %s", first.ID, second.ID)
	}

	balance, _ := svc.GetBalance(context.Background(), accountID)
	if balance != -5 {
		t.Fatalf("expected a single -5 debit, got balance %d", balance)
	}
}

func TestBalanceEqualsLedgerSum(t *testing.T) {
	accountID := uuid.New()
	adminID := uuid.New()
	store := newFakeStore(accountID)
	svc := newService(store, pricing.Tier{
		ID: uuid.New(), MinAmount: decimal.RequireFromString("1000"),
		DiscountPercent: 10, IsActive: true,
	})

	svc.GrantTrial(context.Background(), accountID)
	svc.Deposit(context.Background(), accountID, decimal.RequireFromString("1000"))
	svc.Gift(context.Background(), accountID, 25, "promo", adminID)
	svc.ChargeUsage(context.Background(), accountID, 40, uuid.New())
	svc.Adjust(context.Background(), accountID, -3, "fix")

	sum, err := store.SumDeltas(context.Background(), accountID)
	if err != nil {
		t.Fatalf("sum failed: %v", err)
	}
	balance, err := svc.GetBalance(context.Background(), accountID)
	if err != nil {
		t.Fatalf("get balance failed: %v", err)
	}
	if balance != sum {
		t.Fatalf("balance %d diverged from ledger sum %d", balance, sum)
	}
	if want := int64(60 + 222 + 25 - 40 - 3); balance != want {
		t.Fatalf("expected balance %d, got %d", want, balance)
	}
}

func TestUnknownAccount(t *testing.T) {
	svc := newService(newFakeStore())

	if _, err := svc.GetBalance(context.Background(), uuid.New()); !errors.Is(err, wallet.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := svc.GrantTrial(context.Background(), uuid.New()); !errors.Is(err, wallet.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := svc.Deposit(context.Background(), uuid.New(), decimal.RequireFromString("100")); !errors.Is(err, wallet.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
