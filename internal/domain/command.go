package domain

// Built-in command names.
const (
	CmdChat   = "chat"
	CmdHelp   = "help"
	CmdAgent  = "agent"
	CmdAgents = "agents"
	CmdTask   = "task"
	CmdExit   = "exit"
	CmdKB     = "kb"
	CmdDocs   = "docs"
)

// Command is a parsed chat message. Prefixed is false for free chat, in
// which case Name is CmdChat and Text holds the whole message. Known is false
// for prefixed names outside the built-in set; those may still resolve to a
// persona menu item.
type Command struct {
	Name     string   `json:"name"`
	Args     []string `json:"args,omitempty"`
	Text     string   `json:"text,omitempty"`
	Prefixed bool     `json:"prefixed"`
	Known    bool     `json:"known"`
}
