package main

import (
	"fmt"
	"io/fs"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ashureev/agentdesk/internal/persona"
)

func newPersonasCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "personas",
		Short: "Inspect persona definitions",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "Persona directory (defaults to the embedded set)")

	source := func() fs.FS {
		if dir != "" {
			return persona.Source(dir)
		}
		return persona.Defaults()
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List personas with their commands and tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := persona.Load(source())
			if err != nil {
				return fmt.Errorf("failed to load personas: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%d personas", catalog.Len())))
			for _, p := range catalog.List() {
				fmt.Fprintf(out, "\n%s %s  %s\n", p.Icon, idStyle.Render(p.ID), p.DisplayName())
				fmt.Fprintf(out, "  %s\n", dimStyle.Render(p.WhenToUse))
				if len(p.Tasks) > 0 {
					names := make([]string, 0, len(p.Tasks))
					for _, t := range p.Tasks {
						names = append(names, t.Name)
					}
					fmt.Fprintf(out, "  tasks: %s\n", strings.Join(names, ", "))
				}
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate persona definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := persona.Load(source())
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), errStyle.Render("invalid"))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), lipgloss.JoinHorizontal(lipgloss.Top,
				okStyle.Render("ok"), " ", fmt.Sprintf("%d personas: %s", catalog.Len(), strings.Join(catalog.IDs(), ", "))))
			return nil
		},
	})
	return cmd
}
