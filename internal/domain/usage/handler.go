package usage

import (
	"errors"
	"net/http"
	"strconv"
	"time"

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

type recordSessionRequest struct {
	SessionID string `json:"session_id" validate:"omitempty,uuid"`
	StartedAt string `json:"started_at" validate:"required"`
	EndedAt   string `json:"ended_at" validate:"required"`
}

// RecordSession is the session-teardown hook called by the voice pipeline.
func (h *Handler) RecordSession(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req recordSessionRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	startedAt, err := time.Parse(time.RFC3339, req.StartedAt)
	if err != nil {
		response.BadRequest(w, "started_at must be RFC3339")
		return
	}
	endedAt, err := time.Parse(time.RFC3339, req.EndedAt)
	if err != nil {
		response.BadRequest(w, "ended_at must be RFC3339")
		return
	}

	sessionID := uuid.Nil
	if req.SessionID != "" {
		sessionID, _ = uuid.Parse(req.SessionID)
	}

	session, err := h.svc.RecordSession(r.Context(), accountID, sessionID, startedAt, endedAt)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.Created(w, session)
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	sessions, err := h.svc.ListSessions(r.Context(), accountID, limit, offset)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, map[string]interface{}{"sessions": sessions})
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid session id")
		return
	}

	session, err := h.svc.GetSession(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if session.AccountID != middleware.GetAccountID(r.Context()) && middleware.GetRole(r.Context()) != "admin" {
		response.Forbidden(w, "not your session")
		return
	}
	response.OK(w, session)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidRange):
		response.BadRequest(w, "session ended before it started")
	case errors.Is(err, ErrAccountNotFound):
		response.NotFound(w, "account not found")
	case errors.Is(err, ErrSessionNotFound):
		response.NotFound(w, "session not found")
	default:
		response.InternalError(w)
	}
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/sessions", h.RecordSession)
	r.Get("/sessions", h.ListSessions)
	r.Get("/sessions/{id}", h.GetSession)
	return r
}
