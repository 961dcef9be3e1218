// agentdesk - persona chat orchestration server
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/agentdesk/internal/agent"
	"github.com/ashureev/agentdesk/internal/api"
	"github.com/ashureev/agentdesk/internal/blob"
	"github.com/ashureev/agentdesk/internal/completion"
	"github.com/ashureev/agentdesk/internal/config"
	"github.com/ashureev/agentdesk/internal/dispatch"
	"github.com/ashureev/agentdesk/internal/identity"
	"github.com/ashureev/agentdesk/internal/middleware"
	"github.com/ashureev/agentdesk/internal/persona"
	"github.com/ashureev/agentdesk/internal/session"
	"github.com/ashureev/agentdesk/internal/store"
	"github.com/ashureev/agentdesk/internal/tools"
	"github.com/ashureev/agentdesk/web"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

//nolint:gocyclo // Startup wiring is sequential to keep dependency setup explicit.
func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "store", cfg.StoreBackend)

	repo, err := store.Open(cfg.StoreBackend, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	if err := repo.Ping(ctx); err != nil {
		return fmt.Errorf("store health check: %w", err)
	}

	src := persona.Defaults()
	if cfg.PersonaDir != "" {
		src = persona.Source(cfg.PersonaDir)
	}
	catalog, err := persona.Load(src)
	if err != nil {
		return fmt.Errorf("load personas: %w", err)
	}
	slog.Info("Personas loaded", "count", catalog.Len(), "ids", catalog.IDs())

	blobs, err := blob.New(cfg.DocumentDir)
	if err != nil {
		return fmt.Errorf("initialize document store: %w", err)
	}

	completer, err := completion.New(ctx, completion.Config{
		Provider:        cfg.Completion.Provider,
		Model:           cfg.Completion.Model,
		Timeout:         cfg.Completion.Timeout,
		OpenAIAPIKey:    cfg.Completion.OpenAIAPIKey,
		AzureAPIKey:     cfg.Completion.AzureAPIKey,
		AzureEndpoint:   cfg.Completion.AzureEndpoint,
		AzureAPIVersion: cfg.Completion.AzureAPIVersion,
		AzureDeployment: cfg.Completion.AzureDeployment,
		AnthropicAPIKey: cfg.Completion.AnthropicAPIKey,
		GeminiAPIKey:    cfg.Completion.GeminiAPIKey,
		GRPCAddr:        cfg.Completion.GRPCAddr,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize completion provider: %w", err)
	}
	defer completion.Close(completer)

	registry, err := tools.NewRegistry(
		tools.NewFigma(cfg.Tools.FigmaAPIURL, &http.Client{Timeout: cfg.Tools.Timeout}),
	)
	if err != nil {
		return fmt.Errorf("initialize tools: %w", err)
	}

	sessions := session.NewManager(repo, catalog, session.WithLogger(logger))
	dispatcher := dispatch.New(sessions, catalog, completer, registry, blobs,
		dispatch.WithLogger(logger),
		dispatch.WithHistoryLimit(cfg.Completion.HistoryLimit),
		dispatch.WithExtraction(cfg.ExtractDocuments),
	)

	conversationLogger, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize conversation logger: %w", err)
	}
	chatService := agent.NewService(dispatcher, conversationLogger, logger)
	defer func() {
		if closeErr := chatService.Close(); closeErr != nil {
			slog.Warn("Failed to flush conversation log", "error", closeErr)
		}
	}()

	origins := cfg.AllowedOrigins()
	apiHandler := api.NewHandler(repo, sessions, catalog, blobs, cfg.MaxRequestBodyBytes)
	chatHandler := agent.NewHandler(chatService, cfg.MaxRequestBodyBytes, origins)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(origins))
	if cfg.RateLimit.RPS > 0 {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 0)
		defer limiter.Stop()
		r.Use(limiter.Middleware(identity.IPFromRequest))
	}
	r.Use(identity.Middleware)

	apiHandler.RegisterRoutes(r)
	chatHandler.RegisterRoutes(r)
	r.Handle("/*", web.Handler())

	// No WriteTimeout: WebSocket connections are long-lived and completion
	// calls carry their own timeout.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
