package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/excel-interviewer/internal/tools"
	"github.com/spf13/cobra"
)

func newToolsCmd() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and call the MCP interview tools",
	}
	cmd.PersistentFlags().StringVar(&url, "url", envOr("TOOLS_URL", "http://localhost:9100/mcp"), "MCP endpoint")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the interview tools",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := tools.Dial(cmd.Context(), url, version, slog.Default())
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			out := cmd.OutOrStdout()
			for _, spec := range client.Tools() {
				fmt.Fprintf(out, "%s\n  %s\n", spec.Name, spec.Description)
				for _, p := range spec.Params {
					req := ""
					if p.Required {
						req = " (required)"
					}
					fmt.Fprintf(out, "  - %s%s: %s\n", p.Name, req, p.Description)
				}
			}
			return nil
		},
	}

	var args []string
	call := &cobra.Command{
		Use:   "call NAME",
		Short: "Call one tool and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			toolArgs, err := parseToolArgs(args)
			if err != nil {
				return err
			}
			client, err := tools.Dial(cmd.Context(), url, version, slog.Default())
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			text, err := client.Call(cmd.Context(), positional[0], toolArgs)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	call.Flags().StringArrayVar(&args, "arg", nil, "tool argument as key=value (repeatable)")

	cmd.AddCommand(list, call)
	return cmd
}

func parseToolArgs(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --arg %q, want key=value", pair)
		}
		out[strings.TrimSpace(key)] = value
	}
	return out, nil
}
