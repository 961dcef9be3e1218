// Package domain contains core domain types for the agentdesk service.
package domain

import "strings"

// Task kinds.
const (
	TaskGenerate = "generate"
	TaskTool     = "tool"
)

// Persona is a named agent definition. Personas are loaded once at startup
// and never mutated.
type Persona struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Title      string         `json:"title"`
	Icon       string         `json:"icon,omitempty"`
	WhenToUse  string         `json:"when_to_use"`
	Role       string         `json:"role,omitempty"`
	Style      string         `json:"style,omitempty"`
	Identity   string         `json:"identity,omitempty"`
	Focus      string         `json:"focus,omitempty"`
	Principles []string       `json:"principles,omitempty"`
	Commands   []MenuItem     `json:"commands"`
	Tasks      []TaskTemplate `json:"tasks"`
	// Prompt is the persona's full definition text, handed to the
	// completion service as context.
	Prompt string `json:"-"`
}

// MenuItem is an entry in a persona's command menu. When Task is set,
// "*<name>" runs that task.
type MenuItem struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Task        string `yaml:"task" json:"task,omitempty"`
}

// TaskTemplate describes a task a persona can run.
type TaskTemplate struct {
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description" json:"description"`
	Kind        string     `yaml:"kind" json:"kind"`
	Params      []string   `yaml:"params" json:"params,omitempty"`
	Prompt      string     `yaml:"prompt" json:"-"`
	Output      TaskOutput `yaml:"output" json:"output"`
	Credential  string     `yaml:"credential" json:"credential,omitempty"`
	Tool        string     `yaml:"tool" json:"tool,omitempty"`
	Operation   string     `yaml:"operation" json:"operation,omitempty"`
}

// TaskOutput names the document a task produces.
type TaskOutput struct {
	Name string `yaml:"name" json:"name"`
	Type string `yaml:"type" json:"type"`
}

// Task returns the task template with the given name.
func (p *Persona) Task(name string) (*TaskTemplate, bool) {
	name = strings.ToLower(name)
	for i := range p.Tasks {
		if p.Tasks[i].Name == name {
			return &p.Tasks[i], true
		}
	}
	return nil, false
}

// MenuItem returns the menu entry with the given name.
func (p *Persona) MenuItem(name string) (*MenuItem, bool) {
	name = strings.ToLower(name)
	for i := range p.Commands {
		if p.Commands[i].Name == name {
			return &p.Commands[i], true
		}
	}
	return nil, false
}

// DisplayName returns the persona name, falling back to its id.
func (p *Persona) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}
