// Package agent implements the chat transports: a JSON endpoint, a
// WebSocket endpoint and the conversation log.
package agent

import "github.com/ashureev/agentdesk/internal/domain"

// Conversation log channels.
const (
	ChannelHTTP      = "chat_http"
	ChannelWebSocket = "chat_ws"
)

// ChatRequest is the body of POST /api/chat and of an inbound WebSocket frame.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse is the reply to one chat turn.
type ChatResponse struct {
	Message     string                   `json:"message"`
	Sender      string                   `json:"sender"`
	ActiveAgent string                   `json:"active_agent,omitempty"`
	Documents   []domain.ManagedDocument `json:"documents"`
}

// Frame types sent over the WebSocket.
const (
	FrameReply = "reply"
	FrameError = "error"
)

// Frame is one outbound WebSocket message.
type Frame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	*ChatResponse
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Service string `json:"service,omitempty"`
}
