package pricing

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/filippmiller/myaitutor-sub000/internal/pkg/response"
	"github.com/filippmiller/myaitutor-sub000/internal/pkg/validator"
)

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

type tierRequest struct {
	MinAmount       string `json:"min_amount" validate:"required,cash"`
	DiscountPercent int64  `json:"discount_percent" validate:"gte=0,lte=99"`
	SortOrder       int    `json:"sort_order"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") == ""

	tiers, err := h.repo.List(r.Context(), activeOnly)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, map[string]interface{}{"tiers": tiers})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeTier(w, r)
	if !ok {
		return
	}

	amount, _ := decimal.NewFromString(req.MinAmount)
	tier, err := h.repo.Create(r.Context(), amount, req.DiscountPercent, req.SortOrder)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.Created(w, tier)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid tier id")
		return
	}

	req, ok := h.decodeTier(w, r)
	if !ok {
		return
	}

	amount, _ := decimal.NewFromString(req.MinAmount)
	tier, err := h.repo.Update(r.Context(), id, amount, req.DiscountPercent, req.SortOrder)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, tier)
}

// Deactivate retires a tier. Tier rows are never deleted so historical
// deposits keep a resolvable origin.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid tier id")
		return
	}

	tier, err := h.repo.SetActive(r.Context(), id, false)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, tier)
}

func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid tier id")
		return
	}

	tier, err := h.repo.SetActive(r.Context(), id, true)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, tier)
}

func (h *Handler) decodeTier(w http.ResponseWriter, r *http.Request) (tierRequest, bool) {
	var req tierRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return req, false
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return req, false
	}
	return req, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTierNotFound):
		response.NotFound(w, "pricing tier not found")
	case errors.Is(err, ErrInvalidTier), errors.Is(err, ErrInvalidDiscount):
		response.BadRequest(w, err.Error())
	default:
		response.InternalError(w)
	}
}

// Routes mounts public tier reads and admin tier management.
func (h *Handler) Routes(authMiddleware, adminMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/tiers", h.List)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(adminMiddleware)
		r.Post("/tiers", h.Create)
		r.Put("/tiers/{id}", h.Update)
		r.Post("/tiers/{id}/activate", h.Activate)
		r.Delete("/tiers/{id}", h.Deactivate)
	})
	return r
}
