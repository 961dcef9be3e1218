package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/agentdesk/internal/domain"
)

func TestMiddleware(t *testing.T) {
	t.Parallel()

	var seen string
	h := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = SessionIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	req.Header.Set(SessionHeaderName, "tab-1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "tab-1", seen)

	seen = ""
	req = httptest.NewRequest(http.MethodGet, "/ws/chat?session_id=abc:2", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "abc:2", seen)

	seen = "untouched"
	req = httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Empty(t, seen)

	rec := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	req.Header.Set(SessionHeaderName, "../etc/passwd")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid session_id")
}

func TestResolve(t *testing.T) {
	t.Parallel()

	ctx := WithSessionID(context.Background(), "from-header")

	sid, err := Resolve(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "from-header", sid)

	sid, err = Resolve(ctx, " from-body ")
	require.NoError(t, err)
	assert.Equal(t, "from-body", sid)

	_, err = Resolve(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = Resolve(context.Background(), "bad id")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestIPFromRequest(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	assert.Equal(t, "10.0.0.7", IPFromRequest(req))

	req.RemoteAddr = "10.0.0.7"
	assert.Equal(t, "10.0.0.7", IPFromRequest(req))
}
