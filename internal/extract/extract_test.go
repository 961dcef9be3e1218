package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/agentdesk/internal/domain"
)

const reply = "# Checkout Architecture\n\nThe service is split in two.\n\n" +
	"```mermaid\ngraph TD\n  A-->B\n```\n\n" +
	"```go\n// file: main.go\npackage main\n\nfunc main() {}\n```\n\n" +
	"```python\nprint(1)\n```\n\n" +
	"```json\n{\"title\": \"Config\", \"port\": 8080}\n```\n\n" +
	"```json\n{not json\n```\n"

func TestExtract(t *testing.T) {
	t.Parallel()

	got := Extract(reply)
	require.Len(t, got, 4)

	assert.Equal(t, "Checkout Architecture", got[0].Name)
	assert.Equal(t, domain.DocMarkdown, got[0].Type)

	assert.Equal(t, domain.DocMermaid, got[1].Type)
	assert.Equal(t, "graph TD\n  A-->B", string(got[1].Content))

	assert.Equal(t, domain.DocCode, got[2].Type)
	assert.Equal(t, "main.go", got[2].Name)
	assert.Equal(t, "go", got[2].Metadata["language"])

	assert.Equal(t, domain.DocJSON, got[3].Type)
	assert.Equal(t, "Config", got[3].Name)

	for _, a := range got {
		assert.NoError(t, a.Metadata.Validate())
	}
}

func TestExtractPlainReply(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Extract("Sure, happy to help with that."))
	assert.Empty(t, Extract("# Title only"))
	assert.Empty(t, Extract("```go\nx := 1\n```"))
}

func TestExtractUnterminatedFence(t *testing.T) {
	t.Parallel()

	got := Extract("## Notes\n```go\na\nb\nc\n")
	require.Len(t, got, 1)
	assert.Equal(t, domain.DocMarkdown, got[0].Type)
	assert.Equal(t, "Notes", got[0].Name)
}

func TestExtractUnnamedCode(t *testing.T) {
	t.Parallel()

	got := Extract("```\none\ntwo\nthree\n```")
	require.Len(t, got, 1)
	assert.Equal(t, "Code Snippet 1 (text)", got[0].Name)
}
