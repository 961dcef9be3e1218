// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
)

// Repository persists sessions, their transcripts, documents and credentials.
// Implementations must apply a TurnCommit atomically.
type Repository interface {
	// GetOrCreateSession returns the session, creating an empty one on first access.
	GetOrCreateSession(ctx context.Context, id string, now time.Time) (*domain.Session, error)

	// GetSession returns the session or a not-found error.
	GetSession(ctx context.Context, id string) (*domain.Session, error)

	// CommitTurn applies every mutation of one turn in a single step.
	CommitTurn(ctx context.Context, id string, commit TurnCommit) error

	// ListDocuments returns a session's documents in creation order.
	ListDocuments(ctx context.Context, sessionID string) ([]domain.ManagedDocument, error)

	// GetDocument returns one document or a not-found error.
	GetDocument(ctx context.Context, sessionID, documentID string) (*domain.ManagedDocument, error)

	// GetCredential returns the stored credential or a not-found error.
	GetCredential(ctx context.Context, sessionID, service string) (*domain.Credential, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// TurnCommit is the set of mutations produced by one request.
type TurnCommit struct {
	// Messages are appended in order; the store assigns Seq.
	Messages  []domain.Message
	Documents []domain.ManagedDocument
	// Persona, when non-nil, replaces the active persona and bumps the epoch.
	Persona    *PersonaChange
	Credential *domain.Credential
	UpdatedAt  time.Time
}

// PersonaChange sets the active persona. An empty ID returns the session to
// the default state.
type PersonaChange struct {
	ID string
}

// Empty reports whether the commit carries no mutation.
func (c TurnCommit) Empty() bool {
	return len(c.Messages) == 0 && len(c.Documents) == 0 && c.Persona == nil && c.Credential == nil
}

// Backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Open returns the repository for backend.
func Open(backend, dbPath string) (Repository, error) {
	switch backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendSQLite:
		s, err := NewSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func sessionNotFound(id string) error {
	return domain.NotFoundf("session %s not found", id)
}

func documentNotFound(id string) error {
	return domain.NotFoundf("document %s not found", id)
}

func credentialNotFound(service string) error {
	return domain.NotFoundf("Credentials for %s not found", service)
}
