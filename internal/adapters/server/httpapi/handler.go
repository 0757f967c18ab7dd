// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/taskerco/complaintdesk/internal/adapters/server/common"
	"github.com/taskerco/complaintdesk/internal/app"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	session common.SessionService
	router  chi.Router
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs the REST adapter over one editing session.
func NewHandler(session common.SessionService) *Handler {
	h := &Handler{session: session}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, APIError{
			Code:    "method_not_allowed",
			Message: "method not allowed",
		})
	})

	r.Route("/session", func(r chi.Router) {
		r.Get("/", h.handleStatus)
		r.Patch("/fields", h.handleSetField)
		r.Post("/undo", h.handleUndo)
		r.Post("/redo", h.handleRedo)
		r.Post("/save", h.handleSave)
		r.Post("/autosave/toggle", h.handleToggleAutoSave)
	})
	r.Route("/queue", func(r chi.Router) {
		r.Get("/", h.handleListQueue)
		r.Post("/replay", h.handleReplay)
	})
	h.router = r
	return h
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.session == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "editing session is not configured",
		})
		return
	}
	if r.URL.Path == "" {
		r.URL.Path = "/"
	}
	h.router.ServeHTTP(w, r)
}

// handleStatus serves GET `/session`.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.session.SessionStatus(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleSetField serves PATCH `/session/fields`.
func (h *Handler) handleSetField(w http.ResponseWriter, r *http.Request) {
	var req common.SetFieldRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	view, err := h.session.SetField(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleUndo(w http.ResponseWriter, r *http.Request) {
	view, err := h.session.Undo(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleRedo(w http.ResponseWriter, r *http.Request) {
	view, err := h.session.Redo(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleSave serves POST `/session/save`. A queued save answers 202.
func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	result, err := h.session.Save(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	status := http.StatusOK
	if result.Outcome == app.SaveQueued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

func (h *Handler) handleToggleAutoSave(w http.ResponseWriter, r *http.Request) {
	view, err := h.session.ToggleAutoSave(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleListQueue(w http.ResponseWriter, r *http.Request) {
	queue, err := h.session.PendingChanges(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, queue)
}

func (h *Handler) handleReplay(w http.ResponseWriter, r *http.Request) {
	summary, err := h.session.ReplayQueue(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	var validation *common.ValidationFailure
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.As(err, &validation):
		fields := make(map[string]any, len(validation.Fields))
		for field, message := range validation.Fields {
			fields[field] = message
		}
		writeJSONError(w, http.StatusUnprocessableEntity, APIError{
			Code:    "validation_failed",
			Message: validation.Message,
			Context: map[string]any{"fields": fields},
		})
	case errors.Is(err, common.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrNothingToApply):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "nothing_to_apply",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrConflict):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "save_in_flight",
			Message: err.Error(),
			Hint:    "Wait for the running save to finish.",
		})
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrUnauthorized):
		writeJSONError(w, http.StatusUnauthorized, APIError{
			Code:    "unauthorized",
			Message: err.Error(),
			Hint:    "Refresh the session token and restart the server.",
		})
	case errors.Is(err, common.ErrUpstreamUnavailable):
		writeJSONError(w, http.StatusBadGateway, APIError{
			Code:    "upstream_unavailable",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrSessionUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
