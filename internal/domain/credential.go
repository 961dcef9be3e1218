package domain

import (
	"strings"
	"time"
)

// Credential is an opaque secret bundle for one external service in one
// session. Payload must never be logged or serialized into transcripts,
// document metadata or listings.
type Credential struct {
	Service   string            `json:"-"`
	Payload   map[string]string `json:"-"`
	UpdatedAt time.Time         `json:"-"`
}

// NormalizeService canonicalizes a service name.
func NormalizeService(service string) string {
	return strings.ToLower(strings.TrimSpace(service))
}

// ValidateCredential checks the service name and payload shape.
func ValidateCredential(service string, payload map[string]string) error {
	if NormalizeService(service) == "" {
		return Validationf("service is required")
	}
	if len(payload) == 0 {
		return Validationf("credentials payload is required")
	}
	return nil
}

// String hides the payload from fmt and slog.
func (c Credential) String() string {
	return "credential(" + c.Service + ")"
}
