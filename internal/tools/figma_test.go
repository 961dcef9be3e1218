package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/agentdesk/internal/domain"
)

const figmaFile = `{
  "name": "Checkout",
  "document": {
    "id": "0:0", "type": "DOCUMENT",
    "children": [{
      "id": "0:1", "name": "Flows", "type": "CANVAS",
      "flowStartingPoints": [{"nodeId": "1:1", "name": "Purchase"}],
      "children": [
        {"id": "1:1", "name": "Cart", "type": "FRAME", "children": [
          {"id": "1:5", "name": "Pay button", "type": "INSTANCE", "transitionNodeID": "1:2"}
        ]},
        {"id": "1:2", "name": "Payment", "type": "FRAME", "transitionNodeID": "1:3"},
        {"id": "1:3", "name": "Done", "type": "FRAME", "transitionNodeID": "1:1"},
        {"id": "2:1", "name": "Button", "type": "COMPONENT_SET", "children": [
          {"id": "2:2", "name": "Button/Primary", "type": "COMPONENT"}
        ]}
      ]
    }]
  },
  "components": {
    "2:2": {"key": "k-primary", "name": "Button/Primary", "description": "Main call to action"},
    "9:9": {"key": "k-remote", "name": "Remote Icon", "description": ""}
  }
}`

func figmaServer(t *testing.T, status int, body string) (*httptest.Server, *string) {
	t.Helper()
	var token string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = r.Header.Get("X-Figma-Token")
		if r.URL.Path != "/v1/files/AbC123" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &token
}

func TestFigmaComponents(t *testing.T) {
	t.Parallel()

	srv, token := figmaServer(t, http.StatusOK, figmaFile)
	f := NewFigma(srv.URL, srv.Client())

	res, err := f.Invoke(context.Background(), map[string]string{"token": "secret"}, Invocation{
		Operation: OpComponents,
		Args:      map[string]string{"file": "https://www.figma.com/design/AbC123/Checkout?node-id=0-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "secret", *token)
	assert.Equal(t, "https://www.figma.com/file/AbC123", res.ExternalURL)
	assert.Equal(t, "AbC123", res.Metadata["file_key"])
	assert.Equal(t, 3, res.Metadata["count"])
	require.NoError(t, res.Metadata.Validate())

	var body struct {
		Components []component `json:"components"`
	}
	require.NoError(t, json.Unmarshal(res.Content, &body))
	require.Len(t, body.Components, 3)
	assert.Equal(t, "COMPONENT_SET", body.Components[0].Type)
	assert.Equal(t, "k-primary", body.Components[1].Key)
	assert.Equal(t, "Main call to action", body.Components[1].Description)
	assert.Equal(t, "Flows", body.Components[1].Page)
	assert.Equal(t, "Remote Icon", body.Components[2].Name)
}

func TestFigmaUserFlows(t *testing.T) {
	t.Parallel()

	srv, _ := figmaServer(t, http.StatusOK, figmaFile)
	f := NewFigma(srv.URL, srv.Client())

	res, err := f.Invoke(context.Background(), map[string]string{"token": "secret"}, Invocation{
		Operation: OpUserFlows,
		Input:     "AbC123",
	})
	require.NoError(t, err)

	var body struct {
		Flows       []userFlow `json:"flows"`
		Transitions int        `json:"transitions"`
	}
	require.NoError(t, json.Unmarshal(res.Content, &body))
	require.Len(t, body.Flows, 1)
	flow := body.Flows[0]
	assert.Equal(t, "Purchase", flow.Name)
	assert.Equal(t, []flowStep{{"1:1", "Cart"}, {"1:2", "Payment"}, {"1:3", "Done"}}, flow.Steps)
	assert.Equal(t, 3, body.Transitions)
}

func TestFigmaStatusMapping(t *testing.T) {
	t.Parallel()

	cases := map[int]error{
		http.StatusUnauthorized:    ErrUnauthorized,
		http.StatusForbidden:       ErrUnauthorized,
		http.StatusTooManyRequests: ErrRateLimited,
		http.StatusNotFound:        ErrNotFound,
	}
	for status, want := range cases {
		srv, _ := figmaServer(t, status, `{"status":1,"err":"nope"}`)
		f := NewFigma(srv.URL, srv.Client())
		_, err := f.Invoke(context.Background(), map[string]string{"token": "x"}, Invocation{Operation: OpComponents, Input: "AbC123"})
		assert.ErrorIs(t, err, want, "status %d", status)
	}

	srv, _ := figmaServer(t, http.StatusInternalServerError, `{"err":"boom"}`)
	_, err := NewFigma(srv.URL, srv.Client()).Invoke(context.Background(), map[string]string{"token": "x"}, Invocation{Operation: OpComponents, Input: "AbC123"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestFigmaRejectsBadInput(t *testing.T) {
	t.Parallel()

	f := NewFigma("http://127.0.0.1:1", nil)
	ctx := context.Background()

	_, err := f.Invoke(ctx, map[string]string{"token": "x"}, Invocation{Operation: OpComponents})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = f.Invoke(ctx, map[string]string{"email": "a@b.c"}, Invocation{Operation: OpComponents, Input: "AbC123"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.Invoke(ctx, map[string]string{"token": "x"}, Invocation{Operation: "render", Input: "AbC123"})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestParseFileKey(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"AbC123", "AbC123"},
		{"https://www.figma.com/file/AbC123/My-File", "AbC123"},
		{"https://figma.com/design/XyZ789/x?node-id=1-2", "XyZ789"},
		{"  https://www.figma.com/proto/Key_1/flow?x=1  ", "Key_1"},
	}
	for _, tc := range cases {
		got, err := ParseFileKey(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}

	for _, in := range []string{"", "has space", "https://www.figma.com/community/plugins"} {
		_, err := ParseFileKey(in)
		assert.ErrorIs(t, err, domain.ErrValidation, in)
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(NewFigma("", nil))
	require.NoError(t, err)
	a, ok := r.Get("FIGMA")
	require.True(t, ok)
	assert.Equal(t, FigmaName, a.Name())
	assert.Equal(t, []string{"figma"}, r.Names())

	_, ok = r.Get("jira")
	assert.False(t, ok)

	_, err = NewRegistry(NewFigma("", nil), NewFigma("", nil))
	assert.Error(t, err)

	var nilReg *Registry
	_, ok = nilReg.Get("figma")
	assert.False(t, ok)
}
