package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/agentdesk/internal/command"
	"github.com/ashureev/agentdesk/internal/completion"
	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/extract"
	"github.com/ashureev/agentdesk/internal/store"
)

var builtinHelp = map[string]string{
	domain.CmdHelp:   "*help - show this list",
	domain.CmdAgents: "*agents - list the available agents",
	domain.CmdAgent:  "*agent <id> - switch to an agent",
	domain.CmdTask:   "*task <name> [args] - run a task of the active agent",
	domain.CmdKB:     "*kb [question] - ask the knowledge base",
	domain.CmdDocs:   "*docs - list documents produced in this session",
	domain.CmdExit:   "*exit - leave the active agent",
}

func (d *Dispatcher) chat(ctx context.Context, req *request, text string) (*outcome, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.Validationf("message must not be empty")
	}
	ctxID := ""
	if req.persona != nil {
		ctxID = req.persona.ID
	}
	reply, err := d.completer.Complete(ctx, completion.Request{
		System:  d.catalog.Context(ctxID),
		History: req.snap.Recent(d.historyLimit),
		Message: text,
	})
	if err != nil {
		return nil, external(completionService, err)
	}

	out := &outcome{text: reply, responder: req.responder(), checkEpoch: true}
	if d.extract {
		source := domain.Source(out.responder, domain.CmdChat)
		for _, a := range extract.Extract(reply) {
			out.docs = append(out.docs, d.newArtifact(req.snap.ID, a.Name, a.Type, source, "", a.Content, a.Metadata))
		}
	}
	return out, nil
}

func (d *Dispatcher) help(req *request) *outcome {
	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, name := range command.Builtins() {
		b.WriteString("  ")
		b.WriteString(builtinHelp[name])
		b.WriteByte('\n')
	}

	if p := req.persona; p != nil {
		fmt.Fprintf(&b, "\n%s (%s) commands:\n", p.DisplayName(), p.ID)
		for _, item := range p.Commands {
			if command.IsBuiltin(item.Name) {
				continue
			}
			fmt.Fprintf(&b, "  *%s - %s\n", item.Name, item.Description)
		}
		if len(p.Tasks) > 0 {
			b.WriteString("\nTasks:\n")
			for _, t := range p.Tasks {
				fmt.Fprintf(&b, "  *task %s%s - %s\n", t.Name, paramUsage(t.Params), t.Description)
			}
		}
	} else {
		b.WriteString("\nNo agent is active. Use *agents to see who can help.\n")
	}
	return &outcome{
		text:       strings.TrimRight(b.String(), "\n"),
		responder:  domain.ResponderSystem,
		checkEpoch: true,
	}
}

func paramUsage(params []string) string {
	var b strings.Builder
	for _, p := range params {
		fmt.Fprintf(&b, " <%s>", p)
	}
	return b.String()
}

func (d *Dispatcher) switchAgent(req *request) (*outcome, error) {
	if len(req.cmd.Args) == 0 {
		return nil, domain.Validationf("usage: *agent <id>; available: %s", strings.Join(d.catalog.IDs(), ", "))
	}
	id := strings.ToLower(req.cmd.Args[0])
	p, ok := d.catalog.Get(id)
	if !ok {
		return nil, domain.NotFoundf("agent %q not found; available: %s", id, strings.Join(d.catalog.IDs(), ", "))
	}

	greeting := fmt.Sprintf("%s is now active.", p.DisplayName())
	if p.Icon != "" {
		greeting = p.Icon + " " + greeting
	}
	text := fmt.Sprintf("%s I'm %s, your %s. Type *help to see what I can do.", greeting, p.DisplayName(), p.Title)
	return &outcome{
		text:      text,
		responder: p.ID,
		persona:   &store.PersonaChange{ID: p.ID},
	}, nil
}

func (d *Dispatcher) agents() *outcome {
	var b strings.Builder
	b.WriteString("Available agents:\n")
	for _, p := range d.catalog.List() {
		fmt.Fprintf(&b, "  %s - %s: %s\n", p.ID, p.Title, p.WhenToUse)
	}
	b.WriteString("Switch with *agent <id>.")
	return &outcome{text: b.String(), responder: domain.ResponderSystem}
}

func (d *Dispatcher) exit(req *request) *outcome {
	if req.persona == nil {
		return &outcome{
			text:       "No agent is active; you are talking to the orchestrator.",
			responder:  domain.ResponderSystem,
			checkEpoch: true,
		}
	}
	return &outcome{
		text:       fmt.Sprintf("Exited %s. You are back with the orchestrator.", req.persona.DisplayName()),
		responder:  domain.ResponderSystem,
		persona:    &store.PersonaChange{ID: ""},
		checkEpoch: true,
	}
}

func (d *Dispatcher) docs(ctx context.Context, req *request) (*outcome, error) {
	docs, err := d.sessions.ListDocuments(ctx, req.snap.ID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if len(docs) == 0 {
		return &outcome{text: "No documents have been produced in this session yet.", responder: domain.ResponderSystem}, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Documents (%d):\n", len(docs))
	for _, doc := range docs {
		fmt.Fprintf(&b, "  %s  %s [%s] from %s\n", doc.ID, doc.Name, doc.Type, doc.Source)
	}
	return &outcome{text: strings.TrimRight(b.String(), "\n"), responder: domain.ResponderSystem}, nil
}

func (d *Dispatcher) knowledgeBase(ctx context.Context, req *request) (*outcome, error) {
	kb := d.catalog.KnowledgeBase()
	question := strings.TrimSpace(req.cmd.Text)
	if question == "" {
		return &outcome{text: kb, responder: domain.ResponderSystem, checkEpoch: true}, nil
	}

	system := d.catalog.Context("") + "\n\n--- KNOWLEDGE BASE ---\n" + kb
	reply, err := d.completer.Complete(ctx, completion.Request{
		System:  system,
		History: req.snap.Recent(d.historyLimit),
		Message: question,
	})
	if err != nil {
		return nil, external(completionService, err)
	}
	return &outcome{text: reply, responder: req.responder(), checkEpoch: true}, nil
}

func (d *Dispatcher) unknown(req *request) *outcome {
	return &outcome{
		text:       fmt.Sprintf("Unrecognized command *%s. Type *help to see the available commands.", req.cmd.Name),
		responder:  domain.ResponderSystem,
		checkEpoch: true,
	}
}
