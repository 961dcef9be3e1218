// Package command parses raw chat messages into commands.
package command

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ashureev/agentdesk/internal/domain"
)

// Prefix marks a message as a command.
const Prefix = "*"

// arity is the number of positional arguments each built-in command takes.
// Tokens past the arity are returned as free text.
var arity = map[string]int{
	domain.CmdHelp:   0,
	domain.CmdAgent:  1,
	domain.CmdAgents: 0,
	domain.CmdTask:   1,
	domain.CmdExit:   0,
	domain.CmdKB:     0,
	domain.CmdDocs:   0,
}

// IsBuiltin reports whether name is a built-in command.
func IsBuiltin(name string) bool {
	_, ok := arity[name]
	return ok
}

// Builtins returns the built-in command names in help order.
func Builtins() []string {
	return []string{
		domain.CmdHelp, domain.CmdAgents, domain.CmdAgent, domain.CmdTask,
		domain.CmdKB, domain.CmdDocs, domain.CmdExit,
	}
}

// Parse decomposes raw into a command. It never fails: input without the
// prefix is free chat, and unrecognized prefixed names come back with
// Known set to false.
func Parse(raw string) domain.Command {
	trimmed := strings.TrimSpace(raw)
	if strings.EqualFold(trimmed, domain.CmdExit) {
		return domain.Command{Name: domain.CmdExit, Known: true}
	}
	if !strings.HasPrefix(trimmed, Prefix) {
		return domain.Command{Name: domain.CmdChat, Text: trimmed, Known: true}
	}

	body := trimmed[len(Prefix):]
	nameEnd := strings.IndexFunc(body, unicode.IsSpace)
	if nameEnd < 0 {
		nameEnd = len(body)
	}
	name := strings.ToLower(body[:nameEnd])
	rest := strings.TrimSpace(body[nameEnd:])

	n, known := arity[name]
	if !known {
		n = -1
	}
	args, text := split(rest, n)
	return domain.Command{
		Name:     name,
		Args:     args,
		Text:     text,
		Prefixed: true,
		Known:    known,
	}
}

// SplitArgs tokenizes s like command arguments and returns at most n tokens
// plus the remaining text. Task parameters are filled this way.
func SplitArgs(s string, n int) ([]string, string) {
	if n < 0 {
		n = 0
	}
	return split(strings.TrimSpace(s), n)
}

// split tokenizes s, honouring double quotes. When limit >= 0 it stops after
// limit tokens and returns the untouched remainder as text; otherwise all
// tokens are returned and text is s itself.
func split(s string, limit int) ([]string, string) {
	var args []string
	i := 0
	for i < len(s) {
		if limit >= 0 && len(args) == limit {
			return args, strings.TrimSpace(s[i:])
		}
		for i < len(s) {
			r, size := utf8.DecodeRuneInString(s[i:])
			if !unicode.IsSpace(r) {
				break
			}
			i += size
		}
		if i >= len(s) {
			break
		}
		tok, next := token(s, i)
		args = append(args, tok)
		i = next
	}
	if limit >= 0 {
		return args, ""
	}
	return args, s
}

func token(s string, start int) (string, int) {
	if s[start] == '"' {
		end := strings.IndexByte(s[start+1:], '"')
		if end < 0 {
			return s[start+1:], len(s)
		}
		return s[start+1 : start+1+end], start + end + 2
	}
	end := strings.IndexFunc(s[start:], unicode.IsSpace)
	if end < 0 {
		return s[start:], len(s)
	}
	return s[start : start+end], start + end
}
