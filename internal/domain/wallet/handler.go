package wallet

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/filippmiller/myaitutor-sub000/internal/middleware"
	"github.com/filippmiller/myaitutor-sub000/internal/pkg/response"
	"github.com/filippmiller/myaitutor-sub000/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type depositRequest struct {
	Amount string `json:"amount" validate:"required,cash"`
}

type giftRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
	Minutes   int64  `json:"minutes" validate:"required,gt=0"`
	Reason    string `json:"reason" validate:"max=500"`
}

type adjustRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
	Delta     int64  `json:"delta" validate:"required"`
	Reason    string `json:"reason" validate:"max=500"`
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}
	h.writeBalance(w, r, accountID)
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}
	h.writeTransactions(w, r, accountID)
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req depositRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.BadRequest(w, "invalid amount")
		return
	}

	tx, err := h.svc.Deposit(r.Context(), accountID, amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.Created(w, tx)
}

// GrantTrial is the registration-flow hook. Safe to retry: the second and
// later calls return the original trial transaction.
func (h *Handler) GrantTrial(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	tx, err := h.svc.GrantTrial(r.Context(), accountID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, tx)
}

func (h *Handler) Gift(w http.ResponseWriter, r *http.Request) {
	adminID := middleware.GetAccountID(r.Context())

	var req giftRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		response.BadRequest(w, "invalid account_id")
		return
	}

	tx, err := h.svc.Gift(r.Context(), accountID, req.Minutes, req.Reason, adminID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.Created(w, tx)
}

func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		response.BadRequest(w, "invalid account_id")
		return
	}

	tx, err := h.svc.Adjust(r.Context(), accountID, req.Delta, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.Created(w, tx)
}

func (h *Handler) AccountBalance(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid account id")
		return
	}
	h.writeBalance(w, r, accountID)
}

func (h *Handler) AccountTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid account id")
		return
	}
	h.writeTransactions(w, r, accountID)
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	repaired, err := h.svc.Reconcile(r.Context())
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, map[string]int64{"repaired": repaired})
}

func (h *Handler) writeBalance(w http.ResponseWriter, r *http.Request, accountID uuid.UUID) {
	balance, err := h.svc.GetBalance(r.Context(), accountID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, map[string]int64{"balance": balance})
}

func (h *Handler) writeTransactions(w http.ResponseWriter, r *http.Request, accountID uuid.UUID) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	transactions, err := h.svc.ListTransactions(r.Context(), accountID, limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"transactions": transactions})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAccountNotFound):
		response.NotFound(w, "account not found")
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrZeroAdjustment):
		response.BadRequest(w, err.Error())
	case errors.Is(err, ErrAmountTooSmall):
		response.BadRequest(w, "amount too small to buy a single minute")
	default:
		response.InternalError(w)
	}
}

// Routes mounts the student-facing wallet surface.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/balance", h.Balance)
	r.Get("/transactions", h.Transactions)
	r.Post("/deposit", h.Deposit)
	r.Post("/trial", h.GrantTrial)
	return r
}

// AdminRoutes mounts the admin wallet surface.
func (h *Handler) AdminRoutes(authMiddleware, adminMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(adminMiddleware)
	r.Post("/gift", h.Gift)
	r.Post("/adjust", h.Adjust)
	r.Post("/reconcile", h.Reconcile)
	r.Get("/accounts/{id}/balance", h.AccountBalance)
	r.Get("/accounts/{id}/transactions", h.AccountTransactions)
	return r
}
