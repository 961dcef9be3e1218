// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port                string
	FrontendURL         string
	LogLevel            string
	StoreBackend        string // "memory" or "sqlite"
	DBPath              string
	DocumentDir         string
	PersonaDir          string // empty uses the embedded personas
	ExtractDocuments    bool
	MaxRequestBodyBytes int64
	Completion          CompletionConfig
	Tools               ToolsConfig
	RateLimit           RateLimitConfig
	ConversationLog     ConversationLogConfig
}

// CompletionConfig selects and configures the completion provider.
type CompletionConfig struct {
	Provider        string
	Model           string
	Timeout         time.Duration
	HistoryLimit    int
	OpenAIAPIKey    string
	AzureAPIKey     string
	AzureEndpoint   string
	AzureAPIVersion string
	AzureDeployment string
	AnthropicAPIKey string
	GeminiAPIKey    string
	GRPCAddr        string
}

// ToolsConfig configures external tool adapters.
type ToolsConfig struct {
	FigmaAPIURL string
	Timeout     time.Duration
}

// RateLimitConfig controls per-client request limiting. RPS <= 0 disables it.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		FrontendURL:         getEnv("FRONTEND_URL", ""),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", "info")),
		StoreBackend:        strings.ToLower(getEnv("STORE_BACKEND", "sqlite")),
		DBPath:              getEnv("DB_PATH", "./data/agentdesk.db"),
		DocumentDir:         getEnv("DOCUMENT_DIR", "./data/documents"),
		PersonaDir:          getEnv("PERSONA_DIR", ""),
		ExtractDocuments:    getEnvBool("EXTRACT_DOCUMENTS", false),
		MaxRequestBodyBytes: int64(getEnvInt("MAX_REQUEST_BODY_BYTES", 1<<20)),
		Completion: CompletionConfig{
			Provider:        strings.ToLower(getEnv("COMPLETION_PROVIDER", "")),
			Model:           getEnv("COMPLETION_MODEL", ""),
			Timeout:         getEnvDuration("COMPLETION_TIMEOUT", 60*time.Second),
			HistoryLimit:    getEnvInt("COMPLETION_HISTORY_LIMIT", 20),
			OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
			AzureAPIKey:     getEnv("AZURE_OPENAI_API_KEY", ""),
			AzureEndpoint:   getEnv("AZURE_OPENAI_ENDPOINT", ""),
			AzureAPIVersion: getEnv("AZURE_OPENAI_API_VERSION", "2024-06-01"),
			AzureDeployment: getEnv("AZURE_OPENAI_DEPLOYMENT_NAME", ""),
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
			GRPCAddr:        getEnv("COMPLETION_GRPC_ADDR", ""),
		},
		Tools: ToolsConfig{
			FigmaAPIURL: getEnv("FIGMA_API_URL", "https://api.figma.com"),
			Timeout:     getEnvDuration("TOOL_TIMEOUT", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			RPS:   getEnvFloat("RATE_LIMIT_RPS", 5),
			Burst: getEnvInt("RATE_LIMIT_BURST", 10),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
	}
	cfg.Completion.Provider = cfg.Completion.resolveProvider()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// resolveProvider picks a provider from the configured keys when none is
// set explicitly, falling back to the mock.
func (c CompletionConfig) resolveProvider() string {
	if c.Provider != "" {
		return c.Provider
	}
	switch {
	case c.AzureAPIKey != "" && c.AzureEndpoint != "":
		return "azure"
	case c.OpenAIAPIKey != "":
		return "openai"
	case c.AnthropicAPIKey != "":
		return "anthropic"
	case c.GeminiAPIKey != "":
		return "gemini"
	case c.GRPCAddr != "":
		return "grpc"
	default:
		return "mock"
	}
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}
	switch c.StoreBackend {
	case "memory":
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be memory or sqlite")
	}
	if c.DocumentDir == "" {
		return fmt.Errorf("DOCUMENT_DIR cannot be empty")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_BYTES must be > 0")
	}
	switch c.Completion.Provider {
	case "mock", "openai", "azure", "anthropic", "gemini", "grpc":
	default:
		return fmt.Errorf("COMPLETION_PROVIDER %q is not supported", c.Completion.Provider)
	}
	if c.Completion.Timeout <= 0 {
		return fmt.Errorf("COMPLETION_TIMEOUT must be > 0")
	}
	if c.Completion.HistoryLimit <= 0 {
		return fmt.Errorf("COMPLETION_HISTORY_LIMIT must be > 0")
	}
	if c.Tools.Timeout <= 0 {
		return fmt.Errorf("TOOL_TIMEOUT must be > 0")
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be > 0 when rate limiting is enabled")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the configured frontend.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(c.FrontendURL, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go durations ("90s") or a plain number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
