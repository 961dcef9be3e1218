package domain

import (
	"fmt"
	"time"
)

// Document types.
const (
	DocMarkdown        = "markdown"
	DocJSON            = "json"
	DocText            = "text"
	DocCode            = "code"
	DocDiagram         = "diagram"
	DocMermaid         = "mermaid"
	DocImage           = "image"
	DocHTML            = "html"
	DocFigmaComponents = "figma_components"
	DocFigmaUserFlows  = "figma_user_flows"
)

// ManagedDocument is an artifact produced during a session. Documents are
// immutable once recorded.
type ManagedDocument struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Source      string    `json:"source"`
	ExternalURL string    `json:"external_url,omitempty"`
	LocalRef    string    `json:"-"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
	Metadata    Metadata  `json:"metadata,omitempty"`
}

// Metadata is a document's open key/value set. Values must be primitives.
type Metadata map[string]any

// Validate rejects non-primitive values.
func (m Metadata) Validate() error {
	for k, v := range m {
		switch v.(type) {
		case nil, string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
		default:
			return Validationf("metadata %q: unsupported value type %T", k, v)
		}
	}
	return nil
}

// Clone returns a shallow copy, which is a full copy for primitive values.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Source builds the document source label for a persona task.
func Source(personaID, task string) string {
	return fmt.Sprintf("%s:%s", personaID, task)
}

var docExtensions = map[string]string{
	DocMarkdown:        ".md",
	DocJSON:            ".json",
	DocText:            ".txt",
	DocCode:            ".txt",
	DocDiagram:         ".svg",
	DocMermaid:         ".mmd",
	DocImage:           ".png",
	DocHTML:            ".html",
	DocFigmaComponents: ".json",
	DocFigmaUserFlows:  ".json",
}

var docContentTypes = map[string]string{
	DocMarkdown:        "text/markdown; charset=utf-8",
	DocJSON:            "application/json",
	DocText:            "text/plain; charset=utf-8",
	DocCode:            "text/plain; charset=utf-8",
	DocDiagram:         "image/svg+xml",
	DocMermaid:         "text/plain; charset=utf-8",
	DocImage:           "image/png",
	DocHTML:            "text/html; charset=utf-8",
	DocFigmaComponents: "application/json",
	DocFigmaUserFlows:  "application/json",
}

// DocExtension returns the file extension used to store a document type.
func DocExtension(docType string) string {
	if ext, ok := docExtensions[docType]; ok {
		return ext
	}
	return ".bin"
}

// DocContentType returns the MIME type served for a document type.
func DocContentType(docType string) string {
	if ct, ok := docContentTypes[docType]; ok {
		return ct
	}
	return "application/octet-stream"
}
