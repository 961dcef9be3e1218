package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ashureev/agentdesk/internal/domain"
)

type serverFlags struct {
	server  string
	session string
	timeout time.Duration
}

type renderFlags struct {
	raw   bool
	style string
}

func (f *renderFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.raw, "raw", false, "Print replies without markdown rendering")
	cmd.Flags().StringVar(&f.style, "style", "", "Markdown style (dark, light, notty); auto-detected when empty")
}

func (f *serverFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.server, "server", "http://localhost:8080", "agentdesk server URL")
	cmd.Flags().StringVar(&f.session, "session", "", "Session id (random when empty)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 2*time.Minute, "Request timeout")
}

func (f *serverFlags) client() *client {
	if f.session == "" {
		f.session = "cli-" + uuid.NewString()
	}
	return newClient(f.server, f.session, f.timeout)
}

type chatReply struct {
	Message     string                   `json:"message"`
	Sender      string                   `json:"sender"`
	ActiveAgent string                   `json:"active_agent"`
	Documents   []domain.ManagedDocument `json:"documents"`
}

func newChatCmd() *cobra.Command {
	var (
		flags  serverFlags
		render renderFlags
	)
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send chat messages to a running server",
		Long: `Send one message, or start an interactive session reading lines from
stdin when no message is given. Type "quit" to leave.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := flags.client()
			md := newMarkdownRenderer(render.raw, render.style)
			out := cmd.OutOrStdout()
			if len(args) > 0 {
				return sendAndPrint(cmd.Context(), c, md, out, strings.Join(args, " "))
			}

			fmt.Fprintln(out, dimStyle.Render("session "+c.session))
			sc := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "> ")
				if !sc.Scan() {
					return sc.Err()
				}
				line := strings.TrimSpace(sc.Text())
				if line == "" {
					continue
				}
				if line == "quit" {
					return nil
				}
				if err := sendAndPrint(cmd.Context(), c, md, out, line); err != nil {
					var apiErr *apiError
					if !errors.As(err, &apiErr) {
						return err
					}
					fmt.Fprintln(out, errStyle.Render(apiErr.Error()))
				}
			}
		},
	}
	flags.register(cmd)
	render.register(cmd)
	return cmd
}

func sendAndPrint(ctx context.Context, c *client, md *markdownRenderer, out io.Writer, message string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	data, err := c.do(ctx, http.MethodPost, "/api/chat", map[string]string{
		"session_id": c.session,
		"message":    message,
	})
	if err != nil {
		return err
	}
	var reply chatReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	fmt.Fprintln(out, idStyle.Render(reply.Sender+":"))
	fmt.Fprintln(out, md.Render(reply.Message))
	for _, d := range reply.Documents {
		fmt.Fprintf(out, "  %s %s %s\n", okStyle.Render("+"), d.Name, dimStyle.Render("("+d.ID+")"))
	}
	return nil
}

func newCredentialsCmd() *cobra.Command {
	var (
		flags   serverFlags
		service string
		pairs   []string
	)
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Store credentials for an external service in a session",
		Example: `  agentctl credentials --session s1 --service figma --set token=figd_xxx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload, err := parsePairs(pairs)
			if err != nil {
				return err
			}
			c := flags.client()
			data, err := c.do(cmd.Context(), http.MethodPost, "/api/credentials", map[string]any{
				"session_id":  c.session,
				"service":     service,
				"credentials": payload,
			})
			if err != nil {
				return err
			}
			var ack struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(data, &ack); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(ack.Message))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&service, "service", "", "Service name, e.g. figma")
	cmd.Flags().StringArrayVar(&pairs, "set", nil, "Credential field as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("service")
	return cmd
}

func parsePairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, errors.New("at least one --set key=value is required")
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --set %q: want key=value", p)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

func newDocsCmd() *cobra.Command {
	var flags serverFlags
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "List the documents recorded in a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.session == "" {
				return errors.New("--session is required")
			}
			c := flags.client()
			data, err := c.do(cmd.Context(), http.MethodGet, c.sessionPath("/documents"), nil)
			if err != nil {
				return err
			}
			var list struct {
				Documents []domain.ManagedDocument `json:"documents"`
			}
			if err := json.Unmarshal(data, &list); err != nil {
				return fmt.Errorf("decode documents: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(list.Documents) == 0 {
				fmt.Fprintln(out, dimStyle.Render("no documents"))
				return nil
			}
			for _, d := range list.Documents {
				fmt.Fprintf(out, "%s  %s  %s  %s\n",
					idStyle.Render(d.ID), d.Name, d.Type, dimStyle.Render(d.Source))
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
