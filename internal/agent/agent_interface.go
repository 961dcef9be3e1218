package agent

import (
	"context"

	"github.com/ashureev/agentdesk/internal/dispatch"
)

// Processor runs one chat turn for a session.
type Processor interface {
	Handle(ctx context.Context, sessionID, message string) (*dispatch.Reply, error)
}

// Ensure Dispatcher implements Processor.
var _ Processor = (*dispatch.Dispatcher)(nil)
