package account_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/filippmiller/myaitutor-sub000/internal/domain/account"
	"github.com/filippmiller/myaitutor-sub000/internal/domain/ledger"
)

type fakeRepo struct {
	accounts map[uuid.UUID]account.Account
	emails   map[string]bool
	balances map[uuid.UUID]int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		accounts: make(map[uuid.UUID]account.Account),
		emails:   make(map[string]bool),
		balances: make(map[uuid.UUID]int64),
	}
}

func (r *fakeRepo) Create(_ context.Context, email, role string) (account.Account, error) {
	if r.emails[email] {
		return account.Account{}, account.ErrDuplicateEmail
	}
	r.emails[email] = true
	if role == "" {
		role = "student"
	}
	acc := account.Account{ID: uuid.New(), Email: email, Role: role, CreatedAt: time.Now()}
	r.accounts[acc.ID] = acc
	return acc, nil
}

func (r *fakeRepo) Get(_ context.Context, id uuid.UUID) (account.Account, error) {
	acc, ok := r.accounts[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	acc.MinutesBalance = r.balances[id]
	return acc, nil
}

func (r *fakeRepo) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := r.accounts[id]
	return ok, nil
}

type fakeTrial struct {
	repo    *fakeRepo
	minutes int64
}

func (t *fakeTrial) GrantTrial(_ context.Context, accountID uuid.UUID) (ledger.Transaction, error) {
	t.repo.balances[accountID] += t.minutes
	return ledger.Transaction{
		ID:           uuid.New(),
		AccountID:    accountID,
		Kind:         ledger.KindTrial,
		MinutesDelta: t.minutes,
	}, nil
}

type fakeReferrals struct {
	codes []string
}

func (f *fakeReferrals) RegisterSignup(_ context.Context, _ uuid.UUID, code string) {
	f.codes = append(f.codes, code)
}

func TestSignupGrantsTrial(t *testing.T) {
	repo := newFakeRepo()
	referrals := &fakeReferrals{}
	handler := account.NewHandler(repo, &fakeTrial{repo: repo, minutes: 60}, referrals)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email": "new@student.dev"}`))
	w := httptest.NewRecorder()
	handler.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			Account account.Account    `json:"account"`
			Trial   ledger.Transaction `json:"trial"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Data.Account.MinutesBalance != 60 {
		t.Fatalf("expected balance 60 after trial, got %d", resp.Data.Account.MinutesBalance)
	}
	if resp.Data.Trial.Kind != ledger.KindTrial {
		t.Fatalf("expected trial transaction, got %s", resp.Data.Trial.Kind)
	}
	if len(referrals.codes) != 0 {
		t.Fatalf("no referral code was sent, got %v", referrals.codes)
	}
}

func TestSignupForwardsReferralCode(t *testing.T) {
	repo := newFakeRepo()
	referrals := &fakeReferrals{}
	handler := account.NewHandler(repo, &fakeTrial{repo: repo, minutes: 60}, referrals)

	body := `{"email": "ref@student.dev", "referral_code": "abc123"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if len(referrals.codes) != 1 || referrals.codes[0] != "abc123" {
		t.Fatalf("expected referral code forwarded, got %v", referrals.codes)
	}
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	repo := newFakeRepo()
	handler := account.NewHandler(repo, &fakeTrial{repo: repo, minutes: 60}, &fakeReferrals{})

	for i, want := range []int{http.StatusCreated, http.StatusConflict} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email": "dup@student.dev"}`))
		w := httptest.NewRecorder()
		handler.Routes().ServeHTTP(w, req)
		if w.Code != want {
			t.Fatalf("signup %d: expected %d, got %d", i, want, w.Code)
		}
	}
}

func TestSignupValidatesEmail(t *testing.T) {
	repo := newFakeRepo()
	handler := account.NewHandler(repo, &fakeTrial{repo: repo, minutes: 60}, &fakeReferrals{})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email": "not-an-email"}`))
	w := httptest.NewRecorder()
	handler.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}
