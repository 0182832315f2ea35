package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/credgenhq/credgen/internal/session"
	"github.com/credgenhq/credgen/pkg/logging"
)

// Handler exposes the conversation service over HTTP.
type Handler struct {
	service Service
	store   session.Store
	logger  *logging.Logger
}

// NewHandler creates the HTTP handler for the conversation endpoints.
func NewHandler(service Service, store session.Store, logger *logging.Logger) *Handler {
	if service == nil {
		panic("conversation: service cannot be nil")
	}
	if store == nil {
		panic("conversation: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, store: store, logger: logger}
}

// RegisterRoutes mounts the conversation endpoints on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/conversations/turn", h.handleTurn)
	r.Post("/stages/{stage}", h.handleStage)
	r.Get("/sessions/{id}/status", h.handleStatus)
	r.Post("/sessions/{id}/reset", h.handleReset)
}

func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.service.ProcessTurn(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleStage(w http.ResponseWriter, r *http.Request) {
	var req StageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Stage = chi.URLParam(r, "stage")

	resp, err := h.service.RunStage(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	status, err := h.store.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("status lookup failed", "error", err, "session_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	resp, err := h.service.Reset(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// writeServiceError maps the error taxonomy onto status codes: expired
// sessions tell the caller to reset, collaborator outages are retryable,
// out-of-step stage triggers are conflicts.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrExpired):
		h.writeError(w, http.StatusGone, "session expired; reset to continue")
	case errors.Is(err, ErrUnknownStage):
		h.writeError(w, http.StatusNotFound, "unknown stage")
	case errors.Is(err, ErrStageNotReady):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrStageUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, "stage temporarily unavailable; please retry")
	case errors.Is(err, ErrDispatcherClosed):
		h.writeError(w, http.StatusServiceUnavailable, "service shutting down")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		h.writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		h.logger.Error("conversation request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
