package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashureev/agentdesk/internal/command"
)

func newParseCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "parse <message>",
		Short: "Show how a chat message is parsed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := command.Parse(strings.Join(args, " "))
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(parsed)
			}
			fmt.Fprintf(out, "%s %s\n", headerStyle.Render("command:"), idStyle.Render(parsed.Name))
			fmt.Fprintf(out, "prefixed: %t  builtin: %t\n", parsed.Prefixed, parsed.Known)
			for i, a := range parsed.Args {
				fmt.Fprintf(out, "arg[%d]: %q\n", i, a)
			}
			if parsed.Text != "" {
				fmt.Fprintf(out, "text: %q\n", parsed.Text)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the parsed command as JSON")
	return cmd
}
