// Package identity resolves the caller-supplied chat session id. Users are
// authenticated upstream; this service only ever sees a session id.
package identity

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/ashureev/agentdesk/internal/domain"
)

const (
	SessionHeaderName = "X-Session-ID"
	SessionQueryParam = "session_id"
)

type contextKey int

const sessionIDKey contextKey = iota

// WithSessionID returns a context carrying the session id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext extracts the session id set by Middleware.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get(SessionQueryParam)
	}
	return strings.TrimSpace(sid)
}

// Resolve picks the session id for a request: an explicit value (such as a
// body field) wins over the one found by Middleware.
func Resolve(ctx context.Context, explicit string) (string, error) {
	sid := strings.TrimSpace(explicit)
	if sid == "" {
		sid = SessionIDFromContext(ctx)
	}
	if sid == "" {
		return "", domain.Validationf("session_id is required")
	}
	if !domain.ValidSessionID(sid) {
		return "", domain.Validationf("invalid session_id")
	}
	return sid, nil
}

// Middleware injects the session id from the X-Session-ID header or the
// session_id query parameter. Malformed ids are rejected with 400.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid := sessionIDFromRequest(r)
		if sid == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !domain.ValidSessionID(sid) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": "invalid session_id",
				"kind":  string(domain.KindValidation),
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), sid)))
	})
}

// IPFromRequest returns a normalized remote IP for rate limiting and tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
