package store

import (
	"context"
	"sync"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
)

type memorySession struct {
	session     domain.Session
	documents   []domain.ManagedDocument
	docIndex    map[string]int
	credentials map[string]domain.Credential
}

// MemoryStore implements Repository in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*memorySession)}
}

// GetOrCreateSession returns the session, creating it on first access.
func (m *MemoryStore) GetOrCreateSession(_ context.Context, id string, now time.Time) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.sessions[id]
	if !ok {
		rec = &memorySession{
			session:     domain.Session{ID: id, CreatedAt: now, UpdatedAt: now},
			docIndex:    make(map[string]int),
			credentials: make(map[string]domain.Credential),
		}
		m.sessions[id] = rec
	}
	return rec.session.Clone(), nil
}

// GetSession returns a copy of the session.
func (m *MemoryStore) GetSession(_ context.Context, id string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.sessions[id]
	if !ok {
		return nil, sessionNotFound(id)
	}
	return rec.session.Clone(), nil
}

// CommitTurn validates the whole commit before applying any of it.
func (m *MemoryStore) CommitTurn(_ context.Context, id string, c TurnCommit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.sessions[id]
	if !ok {
		return sessionNotFound(id)
	}
	seen := make(map[string]bool, len(c.Documents))
	for _, d := range c.Documents {
		if _, dup := rec.docIndex[d.ID]; dup || seen[d.ID] {
			return domain.Conflictf("document %s already exists", d.ID)
		}
		seen[d.ID] = true
	}

	s := &rec.session
	next := int64(len(s.Transcript)) + 1
	for _, msg := range c.Messages {
		msg.Seq = next
		next++
		s.Transcript = append(s.Transcript, msg)
	}
	for _, d := range c.Documents {
		d.Metadata = d.Metadata.Clone()
		rec.docIndex[d.ID] = len(rec.documents)
		rec.documents = append(rec.documents, d)
	}
	if c.Persona != nil {
		s.ActivePersona = c.Persona.ID
		s.PersonaEpoch++
	}
	if c.Credential != nil {
		rec.credentials[c.Credential.Service] = copyCredential(*c.Credential)
	}
	if !c.UpdatedAt.IsZero() {
		s.UpdatedAt = c.UpdatedAt
	}
	return nil
}

// ListDocuments returns copies in creation order.
func (m *MemoryStore) ListDocuments(_ context.Context, sessionID string) ([]domain.ManagedDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.sessions[sessionID]
	if !ok {
		return []domain.ManagedDocument{}, nil
	}
	out := make([]domain.ManagedDocument, len(rec.documents))
	for i, d := range rec.documents {
		d.Metadata = d.Metadata.Clone()
		out[i] = d
	}
	return out, nil
}

// GetDocument returns a copy of one document.
func (m *MemoryStore) GetDocument(_ context.Context, sessionID, documentID string) (*domain.ManagedDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.sessions[sessionID]
	if !ok {
		return nil, documentNotFound(documentID)
	}
	i, ok := rec.docIndex[documentID]
	if !ok {
		return nil, documentNotFound(documentID)
	}
	d := rec.documents[i]
	d.Metadata = d.Metadata.Clone()
	return &d, nil
}

// GetCredential returns a copy of the stored credential.
func (m *MemoryStore) GetCredential(_ context.Context, sessionID, service string) (*domain.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.sessions[sessionID]
	if !ok {
		return nil, credentialNotFound(service)
	}
	c, ok := rec.credentials[service]
	if !ok {
		return nil, credentialNotFound(service)
	}
	c = copyCredential(c)
	return &c, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

func copyCredential(c domain.Credential) domain.Credential {
	payload := make(map[string]string, len(c.Payload))
	for k, v := range c.Payload {
		payload[k] = v
	}
	c.Payload = payload
	return c
}
