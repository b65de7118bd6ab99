package referral

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

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

type signupRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

func (h *Handler) MyCode(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}
	response.OK(w, map[string]string{"code": h.svc.GenerateCode(accountID)})
}

// Signup is called by the registration flow when a new account supplied a
// referral code. It always returns 202: bad codes are swallowed so a typo
// never breaks registration.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req signupRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	h.svc.RegisterSignup(r.Context(), accountID, req.Code)
	response.JSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	records, err := h.svc.ListByReferrer(r.Context(), accountID, limit, offset)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, map[string]interface{}{"referrals": records})
}

func (h *Handler) Block(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid referral id")
		return
	}

	rec, err := h.svc.Block(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrRecordNotFound):
			response.NotFound(w, "referral record not found")
		case errors.Is(err, ErrNotPending):
			response.Conflict(w, "referral record is not pending")
		default:
			response.InternalError(w)
		}
		return
	}
	response.OK(w, rec)
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/code", h.MyCode)
	r.Post("/signup", h.Signup)
	r.Get("/", h.List)
	return r
}

func (h *Handler) AdminRoutes(authMiddleware, adminMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(adminMiddleware)
	r.Post("/{id}/block", h.Block)
	return r
}
