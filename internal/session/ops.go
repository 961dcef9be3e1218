package session

import (
	"context"
	"fmt"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/store"
)

// GetOrCreate returns the session, creating it on first access.
func (m *Manager) GetOrCreate(ctx context.Context, id string) (*domain.Session, error) {
	if !domain.ValidSessionID(id) {
		return nil, domain.Validationf("invalid session id")
	}
	sess, err := m.repo.GetOrCreateSession(ctx, id, m.now())
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// Get returns an existing session.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Session, error) {
	if !domain.ValidSessionID(id) {
		return nil, domain.Validationf("invalid session id")
	}
	return m.repo.GetSession(ctx, id)
}

// SetActivePersona switches the session to personaID, or to the default
// state when personaID is empty. Unknown personas are rejected without any
// state change.
func (m *Manager) SetActivePersona(ctx context.Context, id, personaID string) error {
	if personaID != "" {
		if _, ok := m.catalog.Get(personaID); !ok {
			return domain.NotFoundf("agent %q not found", personaID)
		}
	}
	return m.apply(ctx, id, Mutation{Persona: &store.PersonaChange{ID: personaID}})
}

// AppendTranscript appends one message in arrival order.
func (m *Manager) AppendTranscript(ctx context.Context, id string, msg domain.Message) error {
	return m.apply(ctx, id, Mutation{Messages: []domain.Message{msg}})
}

// StoreCredential stores payload for service, replacing any previous value.
func (m *Manager) StoreCredential(ctx context.Context, id, service string, payload map[string]string) error {
	if err := domain.ValidateCredential(service, payload); err != nil {
		return err
	}
	cred := &domain.Credential{
		Service:   domain.NormalizeService(service),
		Payload:   payload,
		UpdatedAt: m.now(),
	}
	if err := m.apply(ctx, id, Mutation{Credential: cred}); err != nil {
		return err
	}
	m.logger.Info("credential stored", "session_id", id, "service", cred.Service)
	return nil
}

// FetchCredential returns the stored payload for service.
func (m *Manager) FetchCredential(ctx context.Context, id, service string) (map[string]string, error) {
	if !domain.ValidSessionID(id) {
		return nil, domain.Validationf("invalid session id")
	}
	cred, err := m.repo.GetCredential(ctx, id, domain.NormalizeService(service))
	if err != nil {
		return nil, err
	}
	return cred.Payload, nil
}

// ListDocuments returns the session's documents in creation order.
func (m *Manager) ListDocuments(ctx context.Context, id string) ([]domain.ManagedDocument, error) {
	if !domain.ValidSessionID(id) {
		return nil, domain.Validationf("invalid session id")
	}
	return m.repo.ListDocuments(ctx, id)
}

// GetDocument returns one document of the session.
func (m *Manager) GetDocument(ctx context.Context, id, documentID string) (*domain.ManagedDocument, error) {
	if !domain.ValidSessionID(id) {
		return nil, domain.Validationf("invalid session id")
	}
	return m.repo.GetDocument(ctx, id, documentID)
}

func (m *Manager) apply(ctx context.Context, id string, mut Mutation) error {
	t, err := m.Begin(ctx, id)
	if err != nil {
		return err
	}
	defer t.Release()
	return t.Commit(ctx, mut)
}
