package completion

import (
	"context"
	"fmt"
	"strings"
)

// Mock answers deterministically without any network access. It is used
// when no provider is configured.
type Mock struct{}

// Complete echoes the request back.
func (Mock) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	first := strings.TrimSpace(req.System)
	if i := strings.IndexByte(first, '\n'); i >= 0 {
		first = first[:i]
	}
	return fmt.Sprintf("This is a mock response for development.\n\nContext: %s\nHistory: %d messages\nYou said: %s",
		first, len(chatTurns(req.History)), req.Message), nil
}
