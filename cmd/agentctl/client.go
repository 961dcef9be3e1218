package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ashureev/agentdesk/internal/identity"
)

// client calls a running agentdesk server.
type client struct {
	base    string
	session string
	http    *http.Client
}

func newClient(base, session string, timeout time.Duration) *client {
	return &client{
		base:    strings.TrimRight(base, "/"),
		session: session,
		http:    &http.Client{Timeout: timeout},
	}
}

// apiError is a non-2xx response from the server.
type apiError struct {
	Status  int
	Message string
	Kind    string
	Service string
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("%s (HTTP %d", e.Message, e.Status)
	if e.Kind != "" {
		msg += ", " + e.Kind
	}
	if e.Service != "" {
		msg += ", service " + e.Service
	}
	return msg + ")"
}

func (c *client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session != "" {
		req.Header.Set(identity.SessionHeaderName, c.session)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		e := &apiError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		if gjson.ValidBytes(data) {
			parsed := gjson.ParseBytes(data)
			if msg := parsed.Get("error").String(); msg != "" {
				e.Message = msg
			}
			e.Kind = parsed.Get("kind").String()
			e.Service = parsed.Get("service").String()
		}
		return nil, e
	}
	return data, nil
}

func (c *client) sessionPath(suffix string) string {
	return "/api/sessions/" + url.PathEscape(c.session) + suffix
}
