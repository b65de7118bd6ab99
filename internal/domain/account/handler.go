package account

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/filippmiller/myaitutor-sub000/internal/domain/ledger"
	"github.com/filippmiller/myaitutor-sub000/internal/pkg/response"
	"github.com/filippmiller/myaitutor-sub000/internal/pkg/validator"
)

// TrialGranter is the wallet hook invoked once per new account.
type TrialGranter interface {
	GrantTrial(ctx context.Context, accountID uuid.UUID) (ledger.Transaction, error)
}

// ReferralRegistrar links a signup to its referrer. Invalid codes no-op.
type ReferralRegistrar interface {
	RegisterSignup(ctx context.Context, newAccountID uuid.UUID, code string)
}

// Handler exposes the signup hook the external registration flow calls
// after it has authenticated the new user.
type Handler struct {
	repo      Repository
	trial     TrialGranter
	referrals ReferralRegistrar
}

func NewHandler(repo Repository, trial TrialGranter, referrals ReferralRegistrar) *Handler {
	return &Handler{repo: repo, trial: trial, referrals: referrals}
}

type signupRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Role         string `json:"role" validate:"omitempty,oneof=student admin"`
	ReferralCode string `json:"referral_code" validate:"omitempty,max=64"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	acc, err := h.repo.Create(r.Context(), req.Email, req.Role)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			response.Conflict(w, "email already registered")
			return
		}
		response.InternalError(w)
		return
	}

	trialTx, err := h.trial.GrantTrial(r.Context(), acc.ID)
	if err != nil {
		response.InternalError(w)
		return
	}

	if req.ReferralCode != "" {
		h.referrals.RegisterSignup(r.Context(), acc.ID, req.ReferralCode)
	}

	// Re-read for the post-trial (and possibly post-referral) balance.
	acc, err = h.repo.Get(r.Context(), acc.ID)
	if err != nil {
		response.InternalError(w)
		return
	}

	response.Created(w, map[string]interface{}{
		"account": acc,
		"trial":   trialTx,
	})
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Signup)
	return r
}
