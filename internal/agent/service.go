package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
)

// Service runs chat turns and records them in the conversation log.
type Service struct {
	processor Processor
	log       ConversationLogger
	logger    *slog.Logger
}

// NewService creates a chat service. A nil log discards events.
func NewService(processor Processor, log ConversationLogger, logger *slog.Logger) *Service {
	if log == nil {
		log = noopConversationLogger{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{processor: processor, log: log, logger: logger}
}

// Chat processes one user message. channel and requestID only feed the
// conversation log.
func (s *Service) Chat(ctx context.Context, channel, sessionID, message, requestID string) (*ChatResponse, error) {
	start := time.Now()
	s.log.Log(ConversationLogEvent{
		SessionID:  sessionID,
		Channel:    channel,
		Direction:  "inbound",
		EventType:  "chat_user_message",
		ContentRaw: message,
		Meta:       map[string]any{"request_id": requestID},
	})

	reply, err := s.processor.Handle(ctx, sessionID, message)
	if err != nil {
		kind := domain.KindOf(err)
		s.logger.Warn("chat turn failed",
			"session_id", sessionID,
			"channel", channel,
			"kind", kind,
			"error", err,
		)
		s.log.Log(ConversationLogEvent{
			SessionID:  sessionID,
			Channel:    channel,
			Direction:  "outbound",
			EventType:  "chat_error",
			ContentRaw: err.Error(),
			Meta: map[string]any{
				"request_id": requestID,
				"kind":       string(kind),
				"service":    domain.ServiceOf(err),
			},
		})
		return nil, err
	}

	docIDs := make([]string, 0, len(reply.Documents))
	for _, d := range reply.Documents {
		docIDs = append(docIDs, d.ID)
	}
	s.logger.Info("chat turn complete",
		"session_id", sessionID,
		"channel", channel,
		"responder", reply.Responder,
		"documents", len(reply.Documents),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	s.log.Log(ConversationLogEvent{
		SessionID:  sessionID,
		Channel:    channel,
		Direction:  "outbound",
		EventType:  "chat_assistant_message",
		Responder:  reply.Responder,
		ContentRaw: reply.Text,
		Meta: map[string]any{
			"request_id":   requestID,
			"active_agent": reply.ActivePersona,
			"document_ids": docIDs,
		},
	})

	docs := reply.Documents
	if docs == nil {
		docs = []domain.ManagedDocument{}
	}
	return &ChatResponse{
		Message:     reply.Text,
		Sender:      reply.Responder,
		ActiveAgent: reply.ActivePersona,
		Documents:   docs,
	}, nil
}

// Close flushes the conversation log.
func (s *Service) Close() error {
	return s.log.Close()
}
