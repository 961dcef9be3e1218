package main

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("212")).
		Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentctl",
		Short: "Operate an agentdesk server",
		Long: `agentctl inspects persona definitions, shows how chat messages are
parsed, and talks to a running agentdesk server.

Quick Start:
  agentctl personas list                 # List the embedded personas
  agentctl parse "*task create-prd Todo"  # Show how a message is parsed
  agentctl chat --session s1 "*agent pm" # Send a message to the server`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newPersonasCmd(),
		newParseCmd(),
		newChatCmd(),
		newCredentialsCmd(),
		newDocsCmd(),
	)
	return root
}
