package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/agentdesk/internal/command"
	"github.com/ashureev/agentdesk/internal/completion"
	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/tools"
)

const taskFollowUp = "Based on the task instructions and the conversation context, what is the next step or the final result?"

// runTask executes a task of the active persona. A required credential is
// checked before anything else so that a missing one is always reported as
// such.
func (d *Dispatcher) runTask(ctx context.Context, req *request, task *domain.TaskTemplate, text string) (*outcome, error) {
	var credential map[string]string
	if task.Credential != "" {
		payload, err := d.sessions.FetchCredential(ctx, req.snap.ID, task.Credential)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.MissingCredential(task.Credential)
		}
		if err != nil {
			return nil, fmt.Errorf("fetch credential: %w", err)
		}
		credential = payload
	}

	params, err := bindParams(task.Params, text)
	if err != nil {
		return nil, err
	}

	d.logger.Info("running task",
		"session_id", req.snap.ID,
		"persona", req.persona.ID,
		"task", task.Name,
		"kind", task.Kind,
	)
	switch task.Kind {
	case domain.TaskGenerate:
		return d.generate(ctx, req, task, params, text)
	case domain.TaskTool:
		return d.invokeTool(ctx, req, task, params, text, credential)
	default:
		return nil, domain.Validationf("task %q has unsupported kind %q", task.Name, task.Kind)
	}
}

// bindParams fills task parameters positionally from text. The last
// parameter takes the rest of the text.
func bindParams(names []string, text string) (map[string]string, error) {
	params := make(map[string]string, len(names))
	if len(names) == 0 {
		return params, nil
	}
	args, rest := command.SplitArgs(text, len(names)-1)
	if len(args) < len(names)-1 || rest == "" {
		return nil, domain.Validationf("missing task arguments; usage:%s", paramUsage(names))
	}
	for i, arg := range args {
		params[names[i]] = arg
	}
	if len(rest) >= 2 && strings.HasPrefix(rest, `"`) && strings.HasSuffix(rest, `"`) {
		rest = rest[1 : len(rest)-1]
	}
	params[names[len(names)-1]] = rest
	return params, nil
}

func fillPrompt(prompt string, params map[string]string, input string) string {
	pairs := make([]string, 0, 2*len(params)+4)
	for name, value := range params {
		pairs = append(pairs, "{"+name+"}", value)
	}
	pairs = append(pairs, "{input}", input, "{args}", input)
	return strings.NewReplacer(pairs...).Replace(prompt)
}

func (d *Dispatcher) generate(ctx context.Context, req *request, task *domain.TaskTemplate, params map[string]string, text string) (*outcome, error) {
	var system strings.Builder
	system.WriteString(d.catalog.Context(req.persona.ID))
	system.WriteString("\n\n--- TASK: ")
	system.WriteString(task.Name)
	system.WriteString(" ---\n")
	system.WriteString(fillPrompt(task.Prompt, params, text))

	history := req.snap.Recent(d.historyLimit)
	if len(history) > 0 {
		system.WriteString("\n\n--- CONVERSATION CONTEXT ---\n")
		for _, m := range history {
			fmt.Fprintf(&system, "%s: %s\n", m.Role, m.Content)
		}
	}

	reply, err := d.completer.Complete(ctx, completion.Request{
		System:  system.String(),
		Message: taskFollowUp,
	})
	if err != nil {
		return nil, external(completionService, err)
	}

	meta := domain.Metadata{"persona": req.persona.ID, "task": task.Name}
	for k, v := range params {
		meta["param_"+k] = v
	}
	doc := d.newArtifact(req.snap.ID, task.Output.Name, task.Output.Type,
		domain.Source(req.persona.ID, task.Name), "", []byte(reply), meta)
	return &outcome{
		text:       reply,
		responder:  req.persona.ID,
		docs:       []artifact{doc},
		checkEpoch: true,
	}, nil
}

func (d *Dispatcher) invokeTool(ctx context.Context, req *request, task *domain.TaskTemplate,
	params map[string]string, text string, credential map[string]string,
) (*outcome, error) {
	adapter, ok := d.tools.Get(task.Tool)
	if !ok {
		return nil, external(task.Tool, fmt.Errorf("tool %q is not configured", task.Tool))
	}
	res, err := adapter.Invoke(ctx, credential, tools.Invocation{
		Operation: task.Operation,
		Args:      params,
		Input:     text,
	})
	if err != nil {
		if domain.KindOf(err) != "" {
			return nil, err
		}
		return nil, external(task.Tool, err)
	}

	meta := res.Metadata.Clone()
	if meta == nil {
		meta = domain.Metadata{}
	}
	meta["persona"] = req.persona.ID
	meta["task"] = task.Name
	name := task.Output.Name
	if res.Name != "" {
		name = res.Name
	}
	doc := d.newArtifact(req.snap.ID, name, task.Output.Type,
		domain.Source(req.persona.ID, task.Name), res.ExternalURL, res.Content, meta)

	summary := res.Summary
	if summary == "" {
		summary = fmt.Sprintf("%s finished.", task.Name)
	}
	return &outcome{
		text:       fmt.Sprintf("%s Saved as document %q (%s).", summary, doc.doc.Name, doc.doc.ID),
		responder:  req.persona.ID,
		docs:       []artifact{doc},
		checkEpoch: true,
	}, nil
}

func (d *Dispatcher) newArtifact(sessionID, name, docType, source, externalURL string, content []byte, meta domain.Metadata) artifact {
	return artifact{
		doc: domain.ManagedDocument{
			ID:          d.newID(),
			SessionID:   sessionID,
			Name:        name,
			Type:        docType,
			Source:      source,
			ExternalURL: externalURL,
			ContentType: domain.DocContentType(docType),
			Size:        int64(len(content)),
			CreatedAt:   d.now().UTC(),
			Metadata:    meta,
		},
		content: content,
	}
}

func taskNames(p *domain.Persona) string {
	names := make([]string, len(p.Tasks))
	for i, t := range p.Tasks {
		names[i] = t.Name
	}
	return strings.Join(names, ", ")
}
