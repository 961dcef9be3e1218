package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// CompleteMethod is the unary RPC the completion sidecar serves. Request and
// response are google.protobuf.Struct values:
//
//	request:  {system: string, message: string, history: [{role, content}]}
//	response: {text: string}
const CompleteMethod = "/agentdesk.completion.v1.Completion/Complete"

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
)

// GRPCConfig holds connection settings for the completion sidecar.
type GRPCConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGRPCConfig returns default connection settings.
func DefaultGRPCConfig(addr string) GRPCConfig {
	return GRPCConfig{
		Address:          addr,
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// GRPC forwards completions to an external model service over gRPC.
type GRPC struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	addr   string
	logger *slog.Logger
}

// NewGRPC connects to addr and fails fast when the service is not ready.
func NewGRPC(ctx context.Context, addr string, logger *slog.Logger) (*GRPC, error) {
	if addr == "" {
		return nil, errors.New("grpc provider requires COMPLETION_GRPC_ADDR")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg := DefaultGRPCConfig(addr)

	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveTime,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: false,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to completion service at %s: %w", cfg.Address, err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("completion service at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to completion service", "address", cfg.Address)
	return newGRPCFromConn(conn, cfg.Address, logger), nil
}

func newGRPCFromConn(conn *grpc.ClientConn, addr string, logger *slog.Logger) *GRPC {
	return &GRPC{conn: conn, health: healthpb.NewHealthClient(conn), addr: addr, logger: logger}
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Close closes the gRPC connection.
func (g *GRPC) Close() {
	if g.conn != nil {
		if err := g.conn.Close(); err != nil {
			g.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

// Health checks the standard gRPC health service of the sidecar.
func (g *GRPC) Health(ctx context.Context) error {
	resp, err := g.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("completion service status %s", resp.GetStatus())
	}
	return nil
}

// Complete performs the unary Complete call.
func (g *GRPC) Complete(ctx context.Context, req Request) (string, error) {
	history := make([]any, 0, len(req.History))
	for _, m := range chatTurns(req.History) {
		history = append(history, map[string]any{"role": m.Role, "content": m.Content})
	}
	in, err := structpb.NewStruct(map[string]any{
		"system":  req.System,
		"message": req.Message,
		"history": history,
	})
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}

	out := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, CompleteMethod, in, out); err != nil {
		return "", classifyRPC(err)
	}
	text, ok := out.GetFields()["text"]
	if !ok {
		return "", fmt.Errorf("%w: completion response missing text", ErrTransient)
	}
	return text.GetStringValue(), nil
}

func classifyRPC(err error) error {
	switch status.Code(err) {
	case codes.FailedPrecondition, codes.PermissionDenied:
		return fmt.Errorf("%w: %w", ErrContentPolicy, err)
	default:
		return fmt.Errorf("%w: completion rpc failed: %w", ErrTransient, err)
	}
}
