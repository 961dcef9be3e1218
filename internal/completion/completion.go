// Package completion talks to the text completion service behind the chat.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
)

// Failure classes reported by providers.
var (
	ErrTransient     = errors.New("completion service unavailable")
	ErrContentPolicy = errors.New("completion refused by content policy")
)

// Request is one completion call. System carries the persona context and
// History the transcript so far, oldest first.
type Request struct {
	System  string
	History []domain.Message
	Message string
}

// Client produces a reply for a request.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Func adapts a function to Client.
type Func func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f Func) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Providers.
const (
	ProviderMock      = "mock"
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderGRPC      = "grpc"
)

// Config selects and configures a provider.
type Config struct {
	Provider string
	Model    string
	Timeout  time.Duration

	OpenAIAPIKey string

	AzureAPIKey     string
	AzureEndpoint   string
	AzureAPIVersion string
	AzureDeployment string

	AnthropicAPIKey string
	GeminiAPIKey    string
	GRPCAddr        string
}

// Closer is implemented by providers holding connections.
type Closer interface {
	Close()
}

// New builds the configured provider. The returned client applies
// cfg.Timeout to every call.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		c   Client
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case ProviderMock, "":
		c = Mock{}
	case ProviderOpenAI:
		c = NewOpenAI(cfg.OpenAIAPIKey, cfg.Model)
	case ProviderAzure:
		c, err = NewAzure(cfg.AzureAPIKey, cfg.AzureEndpoint, cfg.AzureAPIVersion, cfg.AzureDeployment)
	case ProviderAnthropic:
		c = NewAnthropic(cfg.AnthropicAPIKey, cfg.Model)
	case ProviderGemini:
		c, err = NewGemini(ctx, cfg.GeminiAPIKey, cfg.Model)
	case ProviderGRPC:
		c, err = NewGRPC(ctx, cfg.GRPCAddr, logger)
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("Completion provider ready", "provider", cfg.Provider, "model", cfg.Model)
	if cfg.Timeout > 0 {
		c = &timeoutClient{next: c, timeout: cfg.Timeout}
	}
	return c, nil
}

// Close releases provider resources when the client holds any.
func Close(c Client) {
	if tc, ok := c.(*timeoutClient); ok {
		c = tc.next
	}
	if closer, ok := c.(Closer); ok {
		closer.Close()
	}
}

type timeoutClient struct {
	next    Client
	timeout time.Duration
}

func (t *timeoutClient) Complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	reply, err := t.next.Complete(ctx, req)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTransient) {
		return "", fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return reply, err
}

// classifyStatus maps an HTTP status from a provider to a failure class.
func classifyStatus(status int, err error) error {
	switch {
	case status == 400 && mentionsPolicy(err):
		return fmt.Errorf("%w: %w", ErrContentPolicy, err)
	default:
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
}

func mentionsPolicy(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "content_filter") ||
		strings.Contains(msg, "content management policy") ||
		strings.Contains(msg, "content_policy") ||
		strings.Contains(msg, "safety")
}

// chatTurns filters the transcript down to user and assistant messages.
func chatTurns(history []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(history))
	for _, m := range history {
		if m.Role == domain.RoleUser || m.Role == domain.RoleAssistant {
			out = append(out, m)
		}
	}
	return out
}
