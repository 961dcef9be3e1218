package persona

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/agentdesk/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cat, err := Load(Defaults())
	require.NoError(t, err)

	assert.Equal(t, []string{"analyst", "architect", "pm", "ux-expert"}, cat.IDs())
	assert.NotEmpty(t, cat.KnowledgeBase())
	assert.Contains(t, cat.Context(""), "orchestrator")

	pm, ok := cat.Get("pm")
	require.True(t, ok)
	assert.Equal(t, "Product Manager", pm.Title)
	task, ok := pm.Task("create-prd")
	require.True(t, ok)
	assert.Equal(t, domain.TaskGenerate, task.Kind)
	assert.Equal(t, []string{"title"}, task.Params)
	assert.Contains(t, cat.Context("pm"), "```yaml")

	ux, ok := cat.Get("ux-expert")
	require.True(t, ok)
	figma, ok := ux.Task("extract-figma-components")
	require.True(t, ok)
	assert.Equal(t, "figma", figma.Credential)
	assert.Equal(t, domain.DocFigmaComponents, figma.Output.Type)

	for _, p := range cat.List() {
		for _, m := range p.Commands {
			if m.Task == "" {
				continue
			}
			_, ok := p.Task(m.Task)
			assert.Truef(t, ok, "persona %s menu %s", p.ID, m.Name)
		}
	}
}

func TestListReturnsCopy(t *testing.T) {
	t.Parallel()

	cat, err := Load(Defaults())
	require.NoError(t, err)

	list := cat.List()
	list[0].Title = "changed"
	p, _ := cat.Get(list[0].ID)
	assert.NotEqual(t, "changed", p.Title)
}

const validYAML = `
agent:
  id: tester
  title: Tester
tasks:
  - name: write
    kind: generate
    prompt: write {input}
commands:
  - name: write
    task: write
`

func TestLoadYAMLAndRender(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"agents/tester.yaml": {Data: []byte(validYAML)},
	}
	cat, err := Load(fsys)
	require.NoError(t, err)

	p, ok := cat.Get("tester")
	require.True(t, ok)
	task, ok := p.Task("write")
	require.True(t, ok)
	assert.Equal(t, domain.DocMarkdown, task.Output.Type)
	assert.Equal(t, "write", task.Output.Name)
	assert.Contains(t, cat.Context("tester"), "You are tester, the Tester.")
	// Knowledge base falls back to the built-in text.
	assert.NotEmpty(t, cat.KnowledgeBase())
}

func TestLoadRejectsInvalidDefinitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		files fstest.MapFS
		want  string
	}{
		{
			name:  "no agents dir",
			files: fstest.MapFS{"other.md": {Data: []byte("x")}},
			want:  "read agents",
		},
		{
			name:  "markdown without yaml block",
			files: fstest.MapFS{"agents/a.md": {Data: []byte("# nothing here")}},
			want:  "no yaml block",
		},
		{
			name:  "malformed yaml",
			files: fstest.MapFS{"agents/a.yaml": {Data: []byte("agent: [unclosed")}},
			want:  "agents/a.yaml",
		},
		{
			name:  "unknown field",
			files: fstest.MapFS{"agents/a.yaml": {Data: []byte("agent:\n  id: a\n  title: A\nbogus: 1\n")}},
			want:  "bogus",
		},
		{
			name: "duplicate id",
			files: fstest.MapFS{
				"agents/a.yaml": {Data: []byte("agent:\n  id: same\n  title: A\n")},
				"agents/b.yaml": {Data: []byte("agent:\n  id: same\n  title: B\n")},
			},
			want: "duplicate id",
		},
		{
			name:  "invalid id",
			files: fstest.MapFS{"agents/a.yaml": {Data: []byte("agent:\n  id: Not Valid\n  title: A\n")}},
			want:  "invalid id",
		},
		{
			name: "menu references unknown task",
			files: fstest.MapFS{"agents/a.yaml": {Data: []byte(
				"agent:\n  id: a\n  title: A\ncommands:\n  - name: go\n    task: missing\n")}},
			want: "unknown task",
		},
		{
			name: "unknown task kind",
			files: fstest.MapFS{"agents/a.yaml": {Data: []byte(
				"agent:\n  id: a\n  title: A\ntasks:\n  - name: t\n    kind: magic\n")}},
			want: "unknown kind",
		},
		{
			name: "tool task without operation",
			files: fstest.MapFS{"agents/a.yaml": {Data: []byte(
				"agent:\n  id: a\n  title: A\ntasks:\n  - name: t\n    kind: tool\n    tool: figma\n")}},
			want: "tool and operation",
		},
		{
			name: "menu shadows built-in",
			files: fstest.MapFS{"agents/a.yaml": {Data: []byte(
				"agent:\n  id: a\n  title: A\ntasks:\n  - name: t\n    kind: generate\n    prompt: p\ncommands:\n  - name: docs\n    task: t\n")}},
			want: "shadows a built-in",
		},
		{
			name:  "empty catalog",
			files: fstest.MapFS{"agents/readme.txt": {Data: []byte("ignored")}},
			want:  "no personas defined",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(tt.files)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestContextUnknownFallsBackToOrchestrator(t *testing.T) {
	t.Parallel()

	cat, err := New([]domain.Persona{{ID: "solo", Title: "Solo"}}, "kb", "orchestrate")
	require.NoError(t, err)
	assert.Equal(t, "orchestrate", cat.Context("missing"))
	assert.Equal(t, 1, cat.Len())
}
