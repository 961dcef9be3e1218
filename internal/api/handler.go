// Package api provides HTTP handlers for the agentdesk API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/agentdesk/internal/blob"
	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/persona"
	"github.com/ashureev/agentdesk/internal/session"
	"github.com/ashureev/agentdesk/internal/store"
)

// DefaultMaxRequestBodySize caps JSON request bodies (1MB).
const DefaultMaxRequestBodySize = 1 << 20

// Handler serves the read-side and credential endpoints.
type Handler struct {
	repo     store.Repository
	sessions *session.Manager
	catalog  *persona.Catalog
	blobs    *blob.Store
	maxBody  int64
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, sessions *session.Manager, catalog *persona.Catalog, blobs *blob.Store, maxBody int64) *Handler {
	if maxBody <= 0 {
		maxBody = DefaultMaxRequestBodySize
	}
	return &Handler{
		repo:     repo,
		sessions: sessions,
		catalog:  catalog,
		blobs:    blobs,
		maxBody:  maxBody,
	}
}

// RegisterRoutes mounts the API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HandleHealth)
		r.Get("/agents", h.HandleAgents)
		r.Post("/credentials", h.HandleCredentials)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", h.HandleSession)
			r.Get("/documents", h.HandleDocuments)
			r.Get("/documents/{documentID}", h.HandleDocument)
		})
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorBody{Error: message})
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Service string `json:"service,omitempty"`
}

// StatusForKind maps an error kind to its HTTP status.
func StatusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindMissingCredential:
		return http.StatusPreconditionRequired
	case domain.KindExternalServiceFailure:
		return http.StatusBadGateway
	case domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteDomainError writes err with the status of its kind. Unclassified
// errors are logged and reported as internal errors without detail.
func WriteDomainError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	if kind == "" {
		slog.Error("request failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	msg := err.Error()
	var de *domain.Error
	if errors.As(err, &de) && de.Message != "" && kind == domain.KindExternalServiceFailure {
		// The wrapped cause can carry upstream response bodies.
		msg = de.Message
	}
	JSON(w, StatusForKind(kind), ErrorBody{
		Error:   msg,
		Kind:    string(kind),
		Service: domain.ServiceOf(err),
	})
}

// DecodeJSON reads a size-limited JSON body into v.
func DecodeJSON(w http.ResponseWriter, r *http.Request, maxBody int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.Validationf("request body too large")
		}
		return domain.Validationf("invalid request body")
	}
	return nil
}

// HandleHealth reports whether the repository is reachable.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		slog.Warn("health check failed", "error", err)
		JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	JSON(w, http.StatusOK, map[string]any{"status": "ok", "agents": h.catalog.Len()})
}
