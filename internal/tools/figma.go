package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ashureev/agentdesk/internal/domain"
)

const (
	// FigmaName is the registry name and credential service of the adapter.
	FigmaName = "figma"

	// DefaultFigmaURL is the public REST endpoint.
	DefaultFigmaURL = "https://api.figma.com"

	OpComponents = "components"
	OpUserFlows  = "user_flows"

	maxFigmaResponse = 64 << 20
	maxFlowSteps     = 50
)

var fileKeyRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Figma inspects design files through the Figma REST API.
type Figma struct {
	baseURL string
	client  *http.Client
}

// NewFigma creates the adapter. An empty baseURL uses the public API and a
// nil client gets a 30 second timeout.
func NewFigma(baseURL string, client *http.Client) *Figma {
	if baseURL == "" {
		baseURL = DefaultFigmaURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Figma{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Name implements Adapter.
func (f *Figma) Name() string { return FigmaName }

// Invoke runs the components or user_flows operation against the file
// named by the "file" argument (a key or a figma.com URL).
func (f *Figma) Invoke(ctx context.Context, credential map[string]string, inv Invocation) (*Result, error) {
	key, err := ParseFileKey(inv.Arg("file"))
	if err != nil {
		return nil, err
	}
	token := credential["token"]
	if token == "" {
		token = credential["access_token"]
	}
	if token == "" {
		return nil, fmt.Errorf("%w: figma credential has no token", ErrUnauthorized)
	}

	var build func(key string, file gjson.Result) (any, int)
	switch inv.Operation {
	case OpComponents:
		build = buildComponents
	case OpUserFlows:
		build = buildUserFlows
	default:
		return nil, fmt.Errorf("%w: figma %q", ErrUnsupported, inv.Operation)
	}

	file, err := f.fetchFile(ctx, key, token)
	if err != nil {
		return nil, err
	}
	body, count := build(key, file)
	content, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode figma %s: %w", inv.Operation, err)
	}

	fileName := file.Get("name").String()
	label := strings.ReplaceAll(inv.Operation, "_", " ")
	return &Result{
		Name:        strings.TrimSpace(fileName + " " + label),
		Summary:     fmt.Sprintf("Found %d %s in Figma file %s.", count, label, key),
		Content:     content,
		ExternalURL: "https://www.figma.com/file/" + key,
		Metadata: domain.Metadata{
			"file_key":  key,
			"file_name": fileName,
			"operation": inv.Operation,
			"count":     count,
		},
	}, nil
}

// ParseFileKey accepts a bare file key or a figma.com file/design URL.
func ParseFileKey(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", domain.Validationf("a Figma file key or URL is required")
	}
	if strings.Contains(ref, "figma.com") {
		u, err := url.Parse(ref)
		if err != nil {
			return "", domain.Validationf("invalid Figma URL %q", ref)
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		for i := 0; i+1 < len(parts); i++ {
			switch parts[i] {
			case "file", "design", "proto", "board":
				if fileKeyRegex.MatchString(parts[i+1]) {
					return parts[i+1], nil
				}
			}
		}
		return "", domain.Validationf("no file key in Figma URL %q", ref)
	}
	if !fileKeyRegex.MatchString(ref) {
		return "", domain.Validationf("invalid Figma file key %q", ref)
	}
	return ref, nil
}

func (f *Figma) fetchFile(ctx context.Context, key, token string) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/v1/files/"+url.PathEscape(key), nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("build figma request: %w", err)
	}
	req.Header.Set("X-Figma-Token", token)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("figma request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFigmaResponse))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read figma response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return gjson.Result{}, fmt.Errorf("%w: figma returned %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return gjson.Result{}, fmt.Errorf("%w: retry after %s", ErrRateLimited, resp.Header.Get("Retry-After"))
	case resp.StatusCode == http.StatusNotFound:
		return gjson.Result{}, fmt.Errorf("%w: figma file %s", ErrNotFound, key)
	case resp.StatusCode >= 300:
		msg := gjson.GetBytes(data, "err").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return gjson.Result{}, fmt.Errorf("figma returned %d: %s", resp.StatusCode, msg)
	}

	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("figma returned invalid JSON")
	}
	return gjson.ParseBytes(data), nil
}

type component struct {
	ID          string `json:"id"`
	Key         string `json:"key,omitempty"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Page        string `json:"page,omitempty"`
	Description string `json:"description,omitempty"`
}

func buildComponents(key string, file gjson.Result) (any, int) {
	meta := file.Get("components")
	seen := make(map[string]bool)
	var out []component

	file.Get("document.children").ForEach(func(_, page gjson.Result) bool {
		pageName := page.Get("name").String()
		walk(page, func(node gjson.Result) {
			typ := node.Get("type").String()
			if typ != "COMPONENT" && typ != "COMPONENT_SET" {
				return
			}
			id := node.Get("id").String()
			c := component{ID: id, Name: node.Get("name").String(), Type: typ, Page: pageName}
			if m := meta.Get(gjson.Escape(id)); m.Exists() {
				c.Key = m.Get("key").String()
				c.Description = m.Get("description").String()
			}
			seen[id] = true
			out = append(out, c)
		})
		return true
	})

	// Published components may live outside the document tree.
	meta.ForEach(func(id, m gjson.Result) bool {
		if !seen[id.String()] {
			out = append(out, component{
				ID:          id.String(),
				Key:         m.Get("key").String(),
				Name:        m.Get("name").String(),
				Type:        "COMPONENT",
				Description: m.Get("description").String(),
			})
		}
		return true
	})

	return map[string]any{
		"file_key":   key,
		"file_name":  file.Get("name").String(),
		"components": nonNil(out),
	}, len(out)
}

type flowStep struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type userFlow struct {
	Name        string     `json:"name"`
	Page        string     `json:"page"`
	StartNodeID string     `json:"start_node_id"`
	Steps       []flowStep `json:"steps"`
}

type frame struct {
	name   string
	target string
}

func buildUserFlows(key string, file gjson.Result) (any, int) {
	var flows []userFlow
	transitions := 0

	file.Get("document.children").ForEach(func(_, page gjson.Result) bool {
		frames := make(map[string]frame)
		page.Get("children").ForEach(func(_, top gjson.Result) bool {
			fr := frame{name: top.Get("name").String()}
			walk(top, func(node gjson.Result) {
				if t := node.Get("transitionNodeID").String(); t != "" && fr.target == "" {
					fr.target = t
				}
			})
			if fr.target != "" {
				transitions++
			}
			frames[top.Get("id").String()] = fr
			return true
		})

		pageName := page.Get("name").String()
		page.Get("flowStartingPoints").ForEach(func(_, start gjson.Result) bool {
			startID := start.Get("nodeId").String()
			flows = append(flows, userFlow{
				Name:        start.Get("name").String(),
				Page:        pageName,
				StartNodeID: startID,
				Steps:       followFlow(frames, startID),
			})
			return true
		})
		return true
	})

	return map[string]any{
		"file_key":    key,
		"file_name":   file.Get("name").String(),
		"flows":       nonNil(flows),
		"transitions": transitions,
	}, len(flows)
}

func followFlow(frames map[string]frame, start string) []flowStep {
	steps := []flowStep{}
	visited := make(map[string]bool)
	for id := start; id != "" && !visited[id] && len(steps) < maxFlowSteps; {
		visited[id] = true
		fr, ok := frames[id]
		if !ok {
			steps = append(steps, flowStep{ID: id})
			break
		}
		steps = append(steps, flowStep{ID: id, Name: fr.name})
		id = fr.target
	}
	return steps
}

func walk(node gjson.Result, visit func(gjson.Result)) {
	visit(node)
	node.Get("children").ForEach(func(_, child gjson.Result) bool {
		walk(child, visit)
		return true
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
