// interviewctl is the command-line client for the Excel Interviewer.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ashureev/excel-interviewer/internal/observability"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "interviewctl",
		Short:         "Talk to the AI Excel interviewer and manage its services",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			var level slog.Level
			if err := level.UnmarshalText([]byte(logLevel)); err != nil {
				level = slog.LevelError
			}
			observability.New(level, "interviewctl")
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "error", "log level (debug, info, warn, error)")

	root.AddCommand(newChatCmd(), newResetCmd(), newToolsCmd(), newDBCmd())
	return root
}
