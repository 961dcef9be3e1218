package agent

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/agentdesk/internal/api"
	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/identity"
)

// Handler serves chat over HTTP and WebSocket.
type Handler struct {
	service        *Service
	maxBody        int64
	originPatterns []string
}

// NewHandler creates a chat handler. originPatterns restricts WebSocket
// origins; "*" or an empty list accepts any.
func NewHandler(service *Service, maxBody int64, originPatterns []string) *Handler {
	if maxBody <= 0 {
		maxBody = api.DefaultMaxRequestBodySize
	}
	return &Handler{
		service:        service,
		maxBody:        maxBody,
		originPatterns: wsOriginPatterns(originPatterns),
	}
}

// RegisterRoutes registers the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/chat", h.HandleChat)
	r.Get("/ws/chat", h.HandleWebSocket)
}

// HandleChat handles POST /api/chat.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := api.DecodeJSON(w, r, h.maxBody, &req); err != nil {
		api.WriteDomainError(w, err)
		return
	}
	sid, err := identity.Resolve(r.Context(), req.SessionID)
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		api.WriteDomainError(w, domain.Validationf("message is required"))
		return
	}

	slog.Debug("chat request", "session_id", sid, "message_length", len(req.Message))
	resp, err := h.service.Chat(r.Context(), ChannelHTTP, sid, req.Message, chiMiddleware.GetReqID(r.Context()))
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, resp)
}
