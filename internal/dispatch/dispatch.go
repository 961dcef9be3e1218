// Package dispatch maps a chat message plus session state to a reply,
// persona switches, task runs and recorded documents.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/agentdesk/internal/blob"
	"github.com/ashureev/agentdesk/internal/command"
	"github.com/ashureev/agentdesk/internal/completion"
	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/persona"
	"github.com/ashureev/agentdesk/internal/session"
	"github.com/ashureev/agentdesk/internal/store"
	"github.com/ashureev/agentdesk/internal/tools"
)

const (
	// DefaultHistoryLimit bounds the transcript entries sent as context.
	DefaultHistoryLimit = 20

	// MaxMessageLength is the longest accepted chat message in bytes.
	MaxMessageLength = 32 << 10

	completionService = "completion"
)

// Reply is the outcome of one chat turn.
type Reply struct {
	Text          string
	Responder     string
	ActivePersona string
	Documents     []domain.ManagedDocument
}

// Dispatcher runs chat turns. It is safe for concurrent use.
type Dispatcher struct {
	sessions     *session.Manager
	catalog      *persona.Catalog
	completer    completion.Client
	tools        *tools.Registry
	blobs        *blob.Store
	logger       *slog.Logger
	historyLimit int
	extract      bool
	now          func() time.Time
	newID        func() string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithHistoryLimit sets how many transcript entries are sent as context.
func WithHistoryLimit(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.historyLimit = n
		}
	}
}

// WithExtraction records documents found in free chat replies.
func WithExtraction(enabled bool) Option {
	return func(d *Dispatcher) { d.extract = enabled }
}

// WithIDGenerator overrides document id generation.
func WithIDGenerator(fn func() string) Option {
	return func(d *Dispatcher) { d.newID = fn }
}

// WithClock overrides the time source used for documents.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a dispatcher. registry may be nil when no tools are configured.
func New(sessions *session.Manager, catalog *persona.Catalog, completer completion.Client,
	registry *tools.Registry, blobs *blob.Store, opts ...Option,
) *Dispatcher {
	d := &Dispatcher{
		sessions:     sessions,
		catalog:      catalog,
		completer:    completer,
		tools:        registry,
		blobs:        blobs,
		logger:       slog.Default(),
		historyLimit: DefaultHistoryLimit,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// outcome is what a command handler produces before commit.
type outcome struct {
	text       string
	responder  string
	persona    *store.PersonaChange
	docs       []artifact
	checkEpoch bool
}

// artifact is a document whose bytes are not yet stored.
type artifact struct {
	doc     domain.ManagedDocument
	content []byte
}

// request carries per-turn state to the command handlers.
type request struct {
	cmd     domain.Command
	raw     string
	snap    domain.Session
	persona *domain.Persona
}

func (r *request) responder() string {
	if r.persona != nil {
		return r.persona.ID
	}
	return domain.ResponderOrchestrator
}

// Handle processes one message for a session. Validation, not-found,
// missing-credential and conflict errors leave the session untouched.
// External service failures record the user message and a failure entry.
func (d *Dispatcher) Handle(ctx context.Context, sessionID, message string) (*Reply, error) {
	if !domain.ValidSessionID(sessionID) {
		return nil, domain.Validationf("invalid session id")
	}
	if len(message) > MaxMessageLength {
		return nil, domain.Validationf("message exceeds %d bytes", MaxMessageLength)
	}

	turn, err := d.sessions.Begin(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer turn.Release()

	req := &request{cmd: command.Parse(message), raw: message, snap: turn.Snapshot()}
	if id := req.snap.ActivePersona; id != "" {
		if p, ok := d.catalog.Get(id); ok {
			req.persona = p
		} else {
			d.logger.Warn("session references unknown agent", "session_id", sessionID, "persona", id)
		}
	}

	out, err := d.route(ctx, req)
	if err != nil {
		var ext *externalError
		if errors.As(err, &ext) {
			return nil, d.recordFailure(ctx, turn, req, ext)
		}
		return nil, err
	}
	return d.commit(ctx, turn, req, out)
}

func (d *Dispatcher) route(ctx context.Context, req *request) (*outcome, error) {
	cmd := req.cmd
	switch cmd.Name {
	case domain.CmdChat:
		return d.chat(ctx, req, cmd.Text)
	case domain.CmdHelp:
		return d.help(req), nil
	case domain.CmdAgent:
		return d.switchAgent(req)
	case domain.CmdAgents:
		return d.agents(), nil
	case domain.CmdExit:
		return d.exit(req), nil
	case domain.CmdDocs:
		return d.docs(ctx, req)
	case domain.CmdKB:
		return d.knowledgeBase(ctx, req)
	case domain.CmdTask:
		if req.persona == nil {
			return nil, domain.Validationf("no active agent; select one with *agent <id> before running a task")
		}
		if len(cmd.Args) == 0 {
			return nil, domain.Validationf("usage: *task <name> [args]")
		}
		task, ok := req.persona.Task(cmd.Args[0])
		if !ok {
			return nil, domain.NotFoundf("task %q not found for agent %s; available: %s",
				cmd.Args[0], req.persona.ID, taskNames(req.persona))
		}
		return d.runTask(ctx, req, task, cmd.Text)
	}

	if req.persona != nil {
		if item, ok := req.persona.MenuItem(cmd.Name); ok {
			if item.Task == "" {
				return d.chat(ctx, req, req.raw)
			}
			task, ok := req.persona.Task(item.Task)
			if !ok {
				return nil, domain.NotFoundf("task %q not found for agent %s", item.Task, req.persona.ID)
			}
			return d.runTask(ctx, req, task, cmd.Text)
		}
	}
	return d.unknown(req), nil
}

// commit writes the exchange and any documents in one step. Stored blobs are
// removed again when the commit is rejected.
func (d *Dispatcher) commit(ctx context.Context, turn *session.Turn, req *request, out *outcome) (*Reply, error) {
	docs := make([]domain.ManagedDocument, 0, len(out.docs))
	var refs []string
	cleanup := func() {
		for _, ref := range refs {
			if err := d.blobs.Delete(context.WithoutCancel(ctx), ref); err != nil {
				d.logger.Warn("failed to remove orphaned document content", "ref", ref, "error", err)
			}
		}
	}

	for _, a := range out.docs {
		ref, err := d.blobs.Put(ctx, turn.SessionID(), a.doc.ID, a.doc.Type, a.content)
		if err != nil {
			cleanup()
			return nil, err
		}
		refs = append(refs, ref)
		a.doc.LocalRef = ref
		docs = append(docs, a.doc)
	}

	role := domain.RoleAssistant
	if out.responder == domain.ResponderSystem {
		role = domain.RoleSystem
	}
	mut := session.Mutation{
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: req.raw},
			{Role: role, Responder: out.responder, Content: out.text},
		},
		Documents:  docs,
		Persona:    out.persona,
		CheckEpoch: out.checkEpoch,
	}
	if err := turn.Commit(ctx, mut); err != nil {
		cleanup()
		return nil, err
	}

	active := req.snap.ActivePersona
	if out.persona != nil {
		active = out.persona.ID
	}
	d.logger.Debug("turn committed",
		"session_id", turn.SessionID(),
		"command", req.cmd.Name,
		"persona", active,
		"documents", len(docs),
	)
	return &Reply{
		Text:          out.text,
		Responder:     out.responder,
		ActivePersona: active,
		Documents:     docs,
	}, nil
}

// externalError marks a collaborator failure that must be recorded in the
// transcript before it is returned.
type externalError struct {
	err error
}

func (e *externalError) Error() string { return e.err.Error() }
func (e *externalError) Unwrap() error { return e.err }

func external(service string, err error) error {
	return &externalError{err: domain.ExternalFailure(service, err)}
}

func (d *Dispatcher) recordFailure(ctx context.Context, turn *session.Turn, req *request, ext *externalError) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	d.logger.Warn("external service failed",
		"session_id", turn.SessionID(),
		"command", req.cmd.Name,
		"service", domain.ServiceOf(ext.err),
		"error", ext.err,
	)
	mut := session.Mutation{Messages: []domain.Message{
		{Role: domain.RoleUser, Content: req.raw},
		{Role: domain.RoleSystem, Responder: domain.ResponderSystem, Content: ext.err.Error()},
	}}
	if err := turn.Commit(ctx, mut); err != nil {
		d.logger.Error("failed to record external failure", "session_id", turn.SessionID(), "error", err)
	}
	return ext.err
}
