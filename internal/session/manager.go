// Package session serializes per-session state changes.
//
// Each request takes a Turn. Turns of one session run in the order they were
// admitted: Begin returns once every earlier turn has finished, so the
// snapshot reflects their writes. The slow part of a request (completion and
// tool calls) runs between Begin and Commit without holding the session lock,
// so reads and other sessions never wait on it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/persona"
	"github.com/ashureev/agentdesk/internal/store"
)

// ErrTurnClosed is returned when a turn is used after Commit or Release.
var ErrTurnClosed = errors.New("turn already closed")

// Manager owns per-session ordering on top of a Repository.
type Manager struct {
	repo    store.Repository
	catalog *persona.Catalog
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// entry is the lock table slot for one session. sem is a one-slot semaphore
// so lock acquisition can be abandoned on context cancellation. tail is
// closed once the most recently admitted turn has finished.
type entry struct {
	sem  chan struct{}
	tail chan struct{}
	refs int
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a session manager.
func NewManager(repo store.Repository, catalog *persona.Catalog, opts ...Option) *Manager {
	m := &Manager{
		repo:    repo,
		catalog: catalog,
		logger:  slog.Default(),
		now:     time.Now,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Begin admits a request for session id, waits for every earlier turn of
// the session to finish and snapshots its state. The caller must always call
// Release, typically deferred, even after Commit.
func (m *Manager) Begin(ctx context.Context, id string) (*Turn, error) {
	if !domain.ValidSessionID(id) {
		return nil, domain.Validationf("invalid session id")
	}

	e, prev, done := m.admit(id)
	t := &Turn{m: m, id: id, e: e, prev: prev, done: done}

	select {
	case <-prev:
	case <-ctx.Done():
		t.Release()
		return nil, ctx.Err()
	}
	if err := t.lock(ctx); err != nil {
		t.Release()
		return nil, err
	}
	sess, err := m.repo.GetOrCreateSession(ctx, id, m.now())
	t.unlock()
	if err != nil {
		t.Release()
		return nil, fmt.Errorf("load session: %w", err)
	}
	t.snapshot = *sess
	return t, nil
}

func (m *Manager) admit(id string) (*entry, <-chan struct{}, chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		closed := make(chan struct{})
		close(closed)
		e = &entry{sem: make(chan struct{}, 1), tail: closed}
		m.entries[id] = e
	}
	e.refs++
	prev := e.tail
	done := make(chan struct{})
	e.tail = done
	return e, prev, done
}

func (m *Manager) finish(id string, e *entry, done chan struct{}) {
	close(done)
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 && m.entries[id] == e {
		delete(m.entries, id)
	}
}

// activeSessions reports how many sessions hold lock table entries.
func (m *Manager) activeSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Mutation is everything a turn writes.
type Mutation struct {
	Messages   []domain.Message
	Documents  []domain.ManagedDocument
	Persona    *store.PersonaChange
	Credential *domain.Credential
	// CheckEpoch rejects the commit with a conflict when the active persona
	// changed after the turn's snapshot was taken, for example by another
	// process sharing the store.
	CheckEpoch bool
}

// Turn is one admitted request against a session.
type Turn struct {
	m        *Manager
	id       string
	e        *entry
	prev     <-chan struct{}
	done     chan struct{}
	snapshot domain.Session

	mu        sync.Mutex
	committed bool
	released  bool
}

// SessionID returns the session the turn belongs to.
func (t *Turn) SessionID() string { return t.id }

// Snapshot returns the session state read at Begin.
func (t *Turn) Snapshot() domain.Session {
	return *t.snapshot.Clone()
}

func (t *Turn) lock(ctx context.Context) error {
	select {
	case t.e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Turn) unlock() { <-t.e.sem }

// Commit applies mut atomically. On any error nothing is written.
func (t *Turn) Commit(ctx context.Context, mut Mutation) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.committed || t.released {
		return ErrTurnClosed
	}

	if err := t.lock(ctx); err != nil {
		return err
	}
	defer t.unlock()

	if err := t.validate(ctx, mut); err != nil {
		return err
	}

	now := t.m.now()
	commit := store.TurnCommit{
		Messages:   make([]domain.Message, len(mut.Messages)),
		Documents:  mut.Documents,
		Persona:    mut.Persona,
		Credential: mut.Credential,
		UpdatedAt:  now,
	}
	for i, msg := range mut.Messages {
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
		commit.Messages[i] = msg
	}
	if commit.Empty() {
		t.committed = true
		return nil
	}
	if err := t.m.repo.CommitTurn(ctx, t.id, commit); err != nil {
		return fmt.Errorf("commit turn: %w", err)
	}
	t.committed = true
	return nil
}

func (t *Turn) validate(ctx context.Context, mut Mutation) error {
	if mut.CheckEpoch {
		cur, err := t.m.repo.GetSession(ctx, t.id)
		if err != nil {
			return fmt.Errorf("reload session: %w", err)
		}
		if cur.PersonaEpoch != t.snapshot.PersonaEpoch {
			return domain.Conflictf("active agent changed while the request was in flight; retry")
		}
	}
	if mut.Persona != nil && mut.Persona.ID != "" {
		if _, ok := t.m.catalog.Get(mut.Persona.ID); !ok {
			return domain.NotFoundf("agent %q not found", mut.Persona.ID)
		}
	}
	for _, d := range mut.Documents {
		if d.ID == "" || d.SessionID != t.id {
			return domain.Validationf("document must carry an id and belong to session %s", t.id)
		}
		if err := d.Metadata.Validate(); err != nil {
			return err
		}
	}
	if c := mut.Credential; c != nil {
		if err := domain.ValidateCredential(c.Service, c.Payload); err != nil {
			return err
		}
	}
	return nil
}

// Release ends the turn and lets the next admitted turn begin. Release is
// idempotent and does not wait for earlier turns.
func (t *Turn) Release() {
	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return
	}
	t.released = true
	t.mu.Unlock()

	select {
	case <-t.prev:
		t.m.finish(t.id, t.e, t.done)
	default:
		go func() {
			<-t.prev
			t.m.finish(t.id, t.e, t.done)
		}()
	}
}
