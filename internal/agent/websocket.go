package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/identity"
)

const wsWriteTimeout = 10 * time.Second

// HandleWebSocket handles GET /ws/chat. Each inbound text frame is one chat
// turn and gets exactly one reply or error frame. Frames on one connection
// are processed in order.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	defaultSID := identity.SessionIDFromContext(r.Context())
	slog.Info("WebSocket chat connection request", "session_id", defaultSID, "ip", r.RemoteAddr)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Warn("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()
	ws.SetReadLimit(h.maxBody)

	ctx := r.Context()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed by client", "session_id", defaultSID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "session_id", defaultSID)
			}
			return
		}

		frame := h.turn(ctx, defaultSID, data)
		if err := writeFrame(ctx, ws, frame); err != nil {
			slog.Debug("WebSocket write error", "error", err)
			return
		}
	}
}

func (h *Handler) turn(ctx context.Context, defaultSID string, data []byte) Frame {
	var req ChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		// Plain text frames are the message itself.
		req = ChatRequest{Message: string(data)}
	}

	sid, err := identity.Resolve(identity.WithSessionID(ctx, defaultSID), req.SessionID)
	if err != nil {
		return errorFrame(sid, err)
	}
	if strings.TrimSpace(req.Message) == "" {
		return errorFrame(sid, domain.Validationf("message is required"))
	}
	resp, err := h.service.Chat(ctx, ChannelWebSocket, sid, req.Message, "")
	if err != nil {
		return errorFrame(sid, err)
	}
	return Frame{Type: FrameReply, SessionID: sid, ChatResponse: resp}
}

func errorFrame(sid string, err error) Frame {
	f := Frame{
		Type:      FrameError,
		SessionID: sid,
		Kind:      string(domain.KindOf(err)),
		Service:   domain.ServiceOf(err),
		Error:     err.Error(),
	}
	var de *domain.Error
	switch {
	case f.Kind == "":
		f.Error = "internal error"
	case f.Kind == string(domain.KindExternalServiceFailure) && errors.As(err, &de):
		f.Error = de.Message
	}
	return f
}

func writeFrame(ctx context.Context, ws *websocket.Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}

// wsOriginPatterns converts allowed origins to host patterns understood by
// websocket.Accept.
func wsOriginPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			o = u.Host
		}
		out = append(out, o)
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
