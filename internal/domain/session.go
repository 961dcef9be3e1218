package domain

import (
	"regexp"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Responder labels for replies that do not come from a persona.
const (
	ResponderOrchestrator = "orchestrator"
	ResponderSystem       = "system"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// ValidSessionID reports whether id is an acceptable session identifier.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// Session is the per-conversation state. ActivePersona is empty in the
// default orchestrator state. PersonaEpoch increments on every persona change.
type Session struct {
	ID            string    `json:"session_id"`
	ActivePersona string    `json:"active_agent,omitempty"`
	PersonaEpoch  int64     `json:"-"`
	Transcript    []Message `json:"transcript"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Message is one transcript entry.
type Message struct {
	Seq       int64     `json:"seq"`
	Role      string    `json:"role"`
	Responder string    `json:"responder,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Transcript = append([]Message(nil), s.Transcript...)
	return &c
}

// Recent returns at most n trailing transcript entries.
func (s *Session) Recent(n int) []Message {
	if n <= 0 || n >= len(s.Transcript) {
		return s.Transcript
	}
	return s.Transcript[len(s.Transcript)-n:]
}
