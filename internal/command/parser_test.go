package command

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ashureev/agentdesk/internal/domain"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want domain.Command
	}{
		{
			name: "empty is chat",
			raw:  "",
			want: domain.Command{Name: domain.CmdChat, Known: true},
		},
		{
			name: "whitespace is chat",
			raw:  "   \t\n",
			want: domain.Command{Name: domain.CmdChat, Known: true},
		},
		{
			name: "free text",
			raw:  "  draft a PRD for me ",
			want: domain.Command{Name: domain.CmdChat, Text: "draft a PRD for me", Known: true},
		},
		{
			name: "prefix not at start",
			raw:  "hello *agent pm",
			want: domain.Command{Name: domain.CmdChat, Text: "hello *agent pm", Known: true},
		},
		{
			name: "agent with id",
			raw:  "*agent pm",
			want: domain.Command{Name: domain.CmdAgent, Args: []string{"pm"}, Prefixed: true, Known: true},
		},
		{
			name: "name is case insensitive",
			raw:  "*AGENT pm",
			want: domain.Command{Name: domain.CmdAgent, Args: []string{"pm"}, Prefixed: true, Known: true},
		},
		{
			name: "task with trailing text",
			raw:  "*task create-prd a budgeting app   for students",
			want: domain.Command{
				Name:     domain.CmdTask,
				Args:     []string{"create-prd"},
				Text:     "a budgeting app   for students",
				Prefixed: true,
				Known:    true,
			},
		},
		{
			name: "help ignores extra tokens as text",
			raw:  "*help me",
			want: domain.Command{Name: domain.CmdHelp, Text: "me", Prefixed: true, Known: true},
		},
		{
			name: "bare exit",
			raw:  "  EXIT ",
			want: domain.Command{Name: domain.CmdExit, Known: true},
		},
		{
			name: "prefixed exit",
			raw:  "*exit",
			want: domain.Command{Name: domain.CmdExit, Prefixed: true, Known: true},
		},
		{
			name: "unknown command",
			raw:  "*zzz one \"two three\"",
			want: domain.Command{
				Name:     "zzz",
				Args:     []string{"one", "two three"},
				Text:     "one \"two three\"",
				Prefixed: true,
			},
		},
		{
			name: "prefix alone",
			raw:  "*",
			want: domain.Command{Prefixed: true},
		},
		{
			name: "quoted task argument",
			raw:  "*task \"create-prd\" rest",
			want: domain.Command{
				Name:     domain.CmdTask,
				Args:     []string{"create-prd"},
				Text:     "rest",
				Prefixed: true,
				Known:    true,
			},
		},
		{
			name: "unterminated quote",
			raw:  "*agent \"pm",
			want: domain.Command{Name: domain.CmdAgent, Args: []string{"pm"}, Prefixed: true, Known: true},
		},
		{
			name: "non ascii text kept intact",
			raw:  "*kb où est la doc?",
			want: domain.Command{Name: domain.CmdKB, Text: "où est la doc?", Prefixed: true, Known: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Parse(tt.raw)
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.raw, diff)
			}
		})
	}
}

func TestParseIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{"", "*agent pm", "hello", "*zzz a b", "exit", "*task x \"y z\" w"}
	for _, in := range inputs {
		first := Parse(in)
		second := Parse(in)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("Parse(%q) not deterministic:\n%s", in, diff)
		}
	}
}

func TestIsBuiltin(t *testing.T) {
	t.Parallel()

	for _, name := range Builtins() {
		if !IsBuiltin(name) {
			t.Errorf("IsBuiltin(%q) = false", name)
		}
	}
	if IsBuiltin(domain.CmdChat) {
		t.Error("chat should not be a prefixed built-in")
	}
}

func TestSplitArgs(t *testing.T) {
	t.Parallel()

	args, rest := SplitArgs(`  AbC123 "focus area" and more `, 1)
	if diff := cmp.Diff([]string{"AbC123"}, args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
	if rest != `"focus area" and more` {
		t.Errorf("rest = %q", rest)
	}

	args, rest = SplitArgs("only text", 0)
	if len(args) != 0 || rest != "only text" {
		t.Errorf("SplitArgs(n=0) = %q, %q", args, rest)
	}
}
