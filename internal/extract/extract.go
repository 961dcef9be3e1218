// Package extract finds document-worthy artifacts in free-form completion
// replies: fenced code, mermaid diagrams, JSON blocks and headed markdown.
package extract

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ashureev/agentdesk/internal/domain"
)

// MinCodeLines is the shortest fenced code block kept as a document.
const MinCodeLines = 3

var (
	headingRegex  = regexp.MustCompile(`^#{1,2}\s+(\S.*)$`)
	filenameRegex = regexp.MustCompile(`(?m)^\s*(?://|#|--)\s*(?:filename|file)(?::\s*|\s+)(\S+)`)
)

// Artifact is an extracted document body with its descriptive fields.
type Artifact struct {
	Name     string
	Type     string
	Content  []byte
	Metadata domain.Metadata
}

type fence struct {
	lang  string
	lines []string
}

// Extract returns artifacts in the order they appear, with a markdown
// artifact for the whole reply first when it is a headed document.
func Extract(text string) []Artifact {
	fences, prose := splitFences(text)

	var out []Artifact
	if a, ok := markdownArtifact(text, prose); ok {
		out = append(out, a)
	}

	var codeN, diagramN, jsonN int
	for _, f := range fences {
		body := strings.Join(f.lines, "\n")
		switch f.lang {
		case "mermaid":
			diagramN++
			out = append(out, Artifact{
				Name:     fmt.Sprintf("Diagram %d", diagramN),
				Type:     domain.DocMermaid,
				Content:  []byte(body),
				Metadata: domain.Metadata{"format": "mermaid", "extraction_method": "mermaid_diagram"},
			})
		case "json":
			if !gjson.Valid(body) {
				continue
			}
			jsonN++
			name := fmt.Sprintf("JSON Document %d", jsonN)
			parsed := gjson.Parse(body)
			if n := parsed.Get("name"); parsed.IsObject() && n.Type == gjson.String {
				name = n.String()
			} else if t := parsed.Get("title"); parsed.IsObject() && t.Type == gjson.String {
				name = t.String()
			}
			out = append(out, Artifact{
				Name:     name,
				Type:     domain.DocJSON,
				Content:  []byte(body),
				Metadata: domain.Metadata{"extraction_method": "json_block"},
			})
		default:
			if countLines(body) < MinCodeLines {
				continue
			}
			codeN++
			lang := f.lang
			if lang == "" {
				lang = "text"
			}
			name := fmt.Sprintf("Code Snippet %d (%s)", codeN, lang)
			if m := filenameRegex.FindStringSubmatch(body); m != nil {
				name = m[1]
			}
			out = append(out, Artifact{
				Name:     name,
				Type:     domain.DocCode,
				Content:  []byte(body),
				Metadata: domain.Metadata{"language": lang, "extraction_method": "code_block"},
			})
		}
	}
	return out
}

// splitFences separates ``` fenced blocks from the surrounding prose. An
// unterminated fence is treated as prose.
func splitFences(text string) ([]fence, []string) {
	var (
		fences []fence
		prose  []string
		cur    *fence
	)
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if cur == nil {
			if strings.HasPrefix(trimmed, "```") {
				lang := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(trimmed, "```")))
				if i := strings.IndexAny(lang, " \t{"); i >= 0 {
					lang = lang[:i]
				}
				cur = &fence{lang: lang}
				continue
			}
			prose = append(prose, line)
			continue
		}
		if trimmed == "```" {
			fences = append(fences, *cur)
			cur = nil
			continue
		}
		cur.lines = append(cur.lines, line)
	}
	if cur != nil {
		prose = append(prose, "```"+cur.lang)
		prose = append(prose, cur.lines...)
	}
	return fences, prose
}

func markdownArtifact(text string, prose []string) (Artifact, bool) {
	title := ""
	body := 0
	for _, line := range prose {
		if m := headingRegex.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			if title == "" {
				title = strings.TrimSpace(m[1])
			}
			continue
		}
		if title != "" && strings.TrimSpace(line) != "" {
			body++
		}
	}
	if title == "" || body == 0 {
		return Artifact{}, false
	}
	return Artifact{
		Name:     title,
		Type:     domain.DocMarkdown,
		Content:  []byte(strings.TrimSpace(text)),
		Metadata: domain.Metadata{"extraction_method": "markdown_section"},
	}, true
}

func countLines(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}
