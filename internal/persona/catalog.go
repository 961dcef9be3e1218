// Package persona loads and serves the immutable persona catalog.
package persona

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ashureev/agentdesk/internal/domain"
)

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// reserved names cannot be bound to persona tasks; the built-in command wins.
var reserved = map[string]bool{
	domain.CmdHelp: true, domain.CmdAgent: true, domain.CmdAgents: true,
	domain.CmdTask: true, domain.CmdExit: true, domain.CmdKB: true,
	domain.CmdDocs: true, domain.CmdChat: true,
}

var outputTypes = map[string]bool{
	domain.DocMarkdown: true, domain.DocJSON: true, domain.DocText: true,
	domain.DocCode: true, domain.DocDiagram: true, domain.DocMermaid: true,
	domain.DocImage: true, domain.DocHTML: true,
	domain.DocFigmaComponents: true, domain.DocFigmaUserFlows: true,
}

// Catalog is the read-only set of personas. It is safe for concurrent use
// without locking because nothing mutates it after construction.
type Catalog struct {
	personas      []domain.Persona
	byID          map[string]*domain.Persona
	knowledgeBase string
	orchestrator  string
}

// New builds a catalog from in-memory definitions, applying the same
// validation as Load.
func New(personas []domain.Persona, knowledgeBase, orchestrator string) (*Catalog, error) {
	return newCatalog(personas, knowledgeBase, orchestrator)
}

func newCatalog(personas []domain.Persona, kb, orchestrator string) (*Catalog, error) {
	if len(personas) == 0 {
		return nil, errors.New("no personas defined")
	}
	c := &Catalog{
		personas:      make([]domain.Persona, len(personas)),
		byID:          make(map[string]*domain.Persona, len(personas)),
		knowledgeBase: kb,
		orchestrator:  orchestrator,
	}
	copy(c.personas, personas)

	var errs []error
	for i := range c.personas {
		p := &c.personas[i]
		if err := validate(p); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := c.byID[p.ID]; dup {
			errs = append(errs, fmt.Errorf("persona %q: duplicate id", p.ID))
			continue
		}
		c.byID[p.ID] = p
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

func validate(p *domain.Persona) error {
	if !idPattern.MatchString(p.ID) {
		return fmt.Errorf("persona %q: invalid id", p.ID)
	}
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("persona %q: title is required", p.ID)
	}

	var errs []error
	tasks := make(map[string]bool, len(p.Tasks))
	for _, t := range p.Tasks {
		if !idPattern.MatchString(t.Name) {
			errs = append(errs, fmt.Errorf("persona %q: invalid task name %q", p.ID, t.Name))
			continue
		}
		if tasks[t.Name] {
			errs = append(errs, fmt.Errorf("persona %q: duplicate task %q", p.ID, t.Name))
			continue
		}
		tasks[t.Name] = true
		if err := validateTask(t); err != nil {
			errs = append(errs, fmt.Errorf("persona %q task %q: %w", p.ID, t.Name, err))
		}
	}

	menu := make(map[string]bool, len(p.Commands))
	for _, m := range p.Commands {
		if m.Name == "" {
			errs = append(errs, fmt.Errorf("persona %q: menu item without name", p.ID))
			continue
		}
		if menu[m.Name] {
			errs = append(errs, fmt.Errorf("persona %q: duplicate menu item %q", p.ID, m.Name))
			continue
		}
		menu[m.Name] = true
		if m.Task == "" {
			continue
		}
		if reserved[m.Name] {
			errs = append(errs, fmt.Errorf("persona %q: menu item %q shadows a built-in command", p.ID, m.Name))
		}
		if !tasks[m.Task] {
			errs = append(errs, fmt.Errorf("persona %q: menu item %q references unknown task %q", p.ID, m.Name, m.Task))
		}
	}
	return errors.Join(errs...)
}

func validateTask(t domain.TaskTemplate) error {
	if !outputTypes[t.Output.Type] {
		return fmt.Errorf("unknown output type %q", t.Output.Type)
	}
	switch t.Kind {
	case domain.TaskGenerate:
		if strings.TrimSpace(t.Prompt) == "" {
			return errors.New("generate task requires a prompt")
		}
	case domain.TaskTool:
		if t.Tool == "" || t.Operation == "" {
			return errors.New("tool task requires tool and operation")
		}
	default:
		return fmt.Errorf("unknown kind %q", t.Kind)
	}
	return nil
}

// Get returns the persona with the given id. The returned value is shared
// and must not be modified.
func (c *Catalog) Get(id string) (*domain.Persona, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// List returns all personas in definition order.
func (c *Catalog) List() []domain.Persona {
	out := make([]domain.Persona, len(c.personas))
	copy(out, c.personas)
	return out
}

// IDs returns persona ids in definition order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.personas))
	for i := range c.personas {
		ids[i] = c.personas[i].ID
	}
	return ids
}

// Len returns the number of personas.
func (c *Catalog) Len() int { return len(c.personas) }

// KnowledgeBase returns the knowledge base text used by *kb.
func (c *Catalog) KnowledgeBase() string { return c.knowledgeBase }

// Context returns the system prompt for a persona, or the orchestrator
// prompt when id is empty or unknown.
func (c *Catalog) Context(id string) string {
	p, ok := c.byID[id]
	if !ok {
		return c.orchestrator
	}
	if p.Prompt != "" {
		return p.Prompt
	}
	return render(p)
}

func render(p *domain.Persona) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, the %s.\n", p.DisplayName(), p.Title)
	if p.Role != "" {
		fmt.Fprintf(&b, "Role: %s\n", p.Role)
	}
	if p.Style != "" {
		fmt.Fprintf(&b, "Style: %s\n", p.Style)
	}
	if p.Identity != "" {
		fmt.Fprintf(&b, "Identity: %s\n", p.Identity)
	}
	if p.Focus != "" {
		fmt.Fprintf(&b, "Focus: %s\n", p.Focus)
	}
	if len(p.Principles) > 0 {
		b.WriteString("Core principles:\n")
		for _, pr := range p.Principles {
			fmt.Fprintf(&b, "- %s\n", pr)
		}
	}
	return b.String()
}
