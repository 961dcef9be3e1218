package persona

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/agentdesk/internal/domain"
)

// Layout of a definition filesystem.
const (
	AgentsDir         = "agents"
	KnowledgeBaseFile = "knowledge-base.md"
	OrchestratorFile  = "orchestrator.md"
)

var yamlBlock = regexp.MustCompile("(?s)```ya?ml\\s*\\n(.*?)```")

// definition is the on-disk shape of a persona.
type definition struct {
	Agent struct {
		ID        string `yaml:"id"`
		Name      string `yaml:"name"`
		Title     string `yaml:"title"`
		Icon      string `yaml:"icon"`
		WhenToUse string `yaml:"whenToUse"`
	} `yaml:"agent"`
	Persona struct {
		Role           string   `yaml:"role"`
		Style          string   `yaml:"style"`
		Identity       string   `yaml:"identity"`
		Focus          string   `yaml:"focus"`
		CorePrinciples []string `yaml:"core_principles"`
	} `yaml:"persona"`
	Commands []domain.MenuItem     `yaml:"commands"`
	Tasks    []domain.TaskTemplate `yaml:"tasks"`
}

// Load reads every persona definition under agents/ in fsys and builds a
// validated catalog. Markdown files carry their definition in a fenced yaml
// block and the whole document becomes the persona prompt; .yaml files are
// plain definitions. Any malformed or conflicting definition fails the load.
func Load(fsys fs.FS) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, AgentsDir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", AgentsDir, err)
	}

	var personas []domain.Persona
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ext := strings.ToLower(path.Ext(entry.Name()))
		if ext != ".md" && ext != ".yaml" && ext != ".yml" {
			continue
		}
		p, err := loadFile(fsys, path.Join(AgentsDir, entry.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		personas = append(personas, p)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	kb, err := readOptional(fsys, KnowledgeBaseFile)
	if err != nil {
		return nil, err
	}
	orchestrator, err := readOptional(fsys, OrchestratorFile)
	if err != nil {
		return nil, err
	}

	return newCatalog(personas, kb, orchestrator)
}

func loadFile(fsys fs.FS, name string) (domain.Persona, error) {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return domain.Persona{}, fmt.Errorf("%s: %w", name, err)
	}

	body := raw
	isMarkdown := strings.EqualFold(path.Ext(name), ".md")
	if isMarkdown {
		m := yamlBlock.FindSubmatch(raw)
		if m == nil {
			return domain.Persona{}, fmt.Errorf("%s: no yaml block found", name)
		}
		body = m[1]
	}

	var def definition
	dec := yaml.NewDecoder(bytes.NewReader(body))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Persona{}, fmt.Errorf("%s: empty definition", name)
		}
		return domain.Persona{}, fmt.Errorf("%s: %w", name, err)
	}

	p := def.persona(strings.TrimSuffix(path.Base(name), path.Ext(name)))
	if isMarkdown {
		p.Prompt = string(raw)
	}
	return p, nil
}

func (d *definition) persona(stem string) domain.Persona {
	id := strings.TrimSpace(d.Agent.ID)
	if id == "" {
		id = stem
	}
	p := domain.Persona{
		ID:         strings.ToLower(id),
		Name:       d.Agent.Name,
		Title:      d.Agent.Title,
		Icon:       d.Agent.Icon,
		WhenToUse:  strings.TrimSpace(d.Agent.WhenToUse),
		Role:       d.Persona.Role,
		Style:      d.Persona.Style,
		Identity:   d.Persona.Identity,
		Focus:      d.Persona.Focus,
		Principles: d.Persona.CorePrinciples,
		Commands:   d.Commands,
		Tasks:      d.Tasks,
	}
	for i := range p.Commands {
		p.Commands[i].Name = strings.ToLower(strings.TrimSpace(p.Commands[i].Name))
		p.Commands[i].Task = strings.ToLower(strings.TrimSpace(p.Commands[i].Task))
	}
	for i := range p.Tasks {
		t := &p.Tasks[i]
		t.Name = strings.ToLower(strings.TrimSpace(t.Name))
		t.Kind = strings.ToLower(strings.TrimSpace(t.Kind))
		t.Credential = domain.NormalizeService(t.Credential)
		t.Tool = domain.NormalizeService(t.Tool)
		if t.Output.Type == "" {
			t.Output.Type = domain.DocMarkdown
		}
		if t.Output.Name == "" {
			t.Output.Name = t.Name
		}
	}
	return p
}

func readOptional(fsys fs.FS, name string) (string, error) {
	raw, err := fs.ReadFile(fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		raw, err = fs.ReadFile(Defaults(), name)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return string(raw), nil
}
