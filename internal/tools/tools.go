// Package tools defines the port for external tool adapters invoked by
// persona tasks, plus a registry that resolves adapters by name.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ashureev/agentdesk/internal/domain"
)

// Failure classes reported by adapters.
var (
	ErrUnauthorized = errors.New("tool rejected the credential")
	ErrRateLimited  = errors.New("tool rate limit exceeded")
	ErrNotFound     = errors.New("tool resource not found")
	ErrUnsupported  = errors.New("unsupported tool operation")
)

// Invocation is a single call to an adapter operation.
type Invocation struct {
	Operation string
	Args      map[string]string
	Input     string
}

// Arg returns the named argument, falling back to the free-form input.
func (inv Invocation) Arg(name string) string {
	if v := strings.TrimSpace(inv.Args[name]); v != "" {
		return v
	}
	return strings.TrimSpace(inv.Input)
}

// Result is the structured output of a tool call. Content becomes the
// bytes of the produced document.
type Result struct {
	Name        string
	Summary     string
	Content     []byte
	ExternalURL string
	Metadata    domain.Metadata
}

// Adapter is an external tool client. The credential payload is passed per
// call and must never be retained or logged.
type Adapter interface {
	Name() string
	Invoke(ctx context.Context, credential map[string]string, inv Invocation) (*Result, error)
}

// Registry maps tool names to adapters. It is built at startup and read-only
// afterwards.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry registers the given adapters. Duplicate names are rejected.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		name := strings.ToLower(a.Name())
		if _, dup := r.adapters[name]; dup {
			return nil, fmt.Errorf("duplicate tool adapter %q", name)
		}
		r.adapters[name] = a
	}
	return r, nil
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, bool) {
	if r == nil {
		return nil, false
	}
	a, ok := r.adapters[strings.ToLower(name)]
	return a, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
