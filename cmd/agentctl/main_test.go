package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParseCommand(t *testing.T) {
	out, err := run(t, "", "parse", "--json", "*task create-prd Todo App")
	require.NoError(t, err)

	var got struct {
		Name     string   `json:"name"`
		Args     []string `json:"args"`
		Prefixed bool     `json:"prefixed"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "task", got.Name)
	assert.True(t, got.Prefixed)
	assert.Equal(t, "create-prd", got.Args[0])
}

func TestPersonasValidate(t *testing.T) {
	out, err := run(t, "", "personas", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "pm")
	assert.Contains(t, out, "ux-expert")

	_, err = run(t, "", "personas", "validate", "--dir", t.TempDir())
	assert.Error(t, err)
}

func TestPersonasList(t *testing.T) {
	out, err := run(t, "", "personas", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "create-prd")
}

func TestChatAgainstServer(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []map[string]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		seen = append(seen, body)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if body["message"] == "*agent ghost" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"agent \"ghost\" not found","kind":"not_found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"message":"Hello, I am John.","sender":"pm","active_agent":"pm","documents":[{"id":"d1","name":"PRD"}]}`))
	}))
	defer srv.Close()

	out, err := run(t, "", "chat", "--raw", "--server", srv.URL, "--session", "s1", "*agent", "pm")
	require.NoError(t, err)
	assert.Contains(t, out, "Hello, I am John.")
	assert.Contains(t, out, "PRD")
	mu.Lock()
	require.Len(t, seen, 1)
	assert.Equal(t, "s1", seen[0]["session_id"])
	assert.Equal(t, "*agent pm", seen[0]["message"])
	mu.Unlock()

	_, err = run(t, "", "chat", "--server", srv.URL, "--session", "s1", "*agent ghost")
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "not_found", apiErr.Kind)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)

	// Interactive mode keeps going after an error and stops on quit.
	out, err = run(t, "*agent ghost\nhello\nquit\n", "chat", "--raw", "--server", srv.URL, "--session", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "not_found")
	assert.Contains(t, out, "Hello, I am John.")
}

func TestParsePairs(t *testing.T) {
	got, err := parsePairs([]string{"token=abc=def", " user = x"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"token": "abc=def", "user": " x"}, got)

	_, err = parsePairs(nil)
	assert.Error(t, err)
	_, err = parsePairs([]string{"novalue"})
	assert.Error(t, err)
}

func TestMarkdownRenderer(t *testing.T) {
	assert.Equal(t, "# Title", newMarkdownRenderer(true, "").Render("# Title"))

	out := newMarkdownRenderer(false, "notty").Render("# Title\n\nSome **bold** text.")
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "bold")
}
