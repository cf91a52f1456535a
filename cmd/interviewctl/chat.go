package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/ashureev/excel-interviewer/internal/relay"
	"github.com/spf13/cobra"
)

const cliAgentID = "excel-interviewer"

func newChatCmd() *cobra.Command {
	var (
		agentURL     string
		userID       string
		fresh        bool
		pollInterval time.Duration
		maxPolls     int
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start or resume an interview with the agent",
		Long: "Start or resume an interview with the agent. The conversation id is kept in " +
			sessionFile + " so the next run continues where this one stopped.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			if fresh {
				if _, err := resetSession(sessionFile); err != nil {
					return err
				}
			}
			contextID, err := loadSession(sessionFile)
			if err != nil {
				return err
			}

			registry := relay.NewRegistry(map[string]string{cliAgentID: agentURL}, slog.Default())
			defer registry.Close()
			client, err := registry.Client(ctx, cliAgentID)
			if err != nil {
				return fmt.Errorf("connect to agent at %s: %w", agentURL, err)
			}

			poller := relay.NewPoller(pollInterval, maxPolls, slog.Default())
			return chatLoop(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), poller, client, sessionFile, contextID, userID)
		},
	}
	cmd.Flags().StringVar(&agentURL, "agent-url", envOr("AGENT_URL", "http://localhost:10100"), "agent base URL (grpc://host:port for gRPC)")
	cmd.Flags().StringVar(&userID, "user-id", "cli-user", "candidate id sent to the agent")
	cmd.Flags().BoolVar(&fresh, "new", false, "discard the saved conversation and start a new one")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", time.Second, "task polling interval")
	cmd.Flags().IntVar(&maxPolls, "max-polls", 180, "polls before giving up on a reply")
	return cmd
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the saved conversation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			removed, err := resetSession(sessionFile)
			if err != nil {
				return err
			}
			if removed {
				fmt.Fprintln(cmd.OutOrStdout(), "Session reset.")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "No saved session.")
			}
			return nil
		},
	}
}

// chatLoop reads one message per line until EOF or "quit", streaming each
// reply. The context id is saved after every exchange.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, poller *relay.Poller, client relay.AgentClient, sessionPath, contextID, userID string) error {
	if contextID == "" {
		fmt.Fprintln(out, "Starting a new interview. Say hello to begin, or \"quit\" to leave.")
	} else {
		fmt.Fprintf(out, "Resuming conversation %s.\n", contextID)
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "quit", "exit":
			return nil
		}

		for ev := range poller.Stream(ctx, client, line, contextID, userID) {
			contextID = ev.ContextID
			switch ev.Type {
			case relay.EventThought:
				fmt.Fprintf(out, "  ... %s\n", ev.Content)
			case relay.EventFinal:
				fmt.Fprintf(out, "\n%s\n\n", ev.Content)
			case relay.EventError:
				fmt.Fprintf(out, "\n[error] %s\n\n", ev.Content)
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		if err := saveSession(sessionPath, contextID); err != nil {
			return err
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
