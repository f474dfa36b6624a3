// Package cmd wires the pulsar CLI: the coordinator loop, the label
// validator, label definition, and git tooling.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pulsar",
	Short: "Issue-driven workflow coordinator",
	Long: "Pulsar polls an issue tracker for work items whose status label names the\n" +
		"next automated step, dispatches an LLM-backed worker against the repository,\n" +
		"and advances the label when the worker finishes.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("project-dir", ".", "repository working copy to operate on")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "shorthand for --log-level debug")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			level = "debug"
		}
		return setupLogging(level)
	}
}

func setupLogging(level string) error {
	var lv slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lv = slog.LevelDebug
	case "info":
		lv = slog.LevelInfo
	case "warn", "warning":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv})
	slog.SetDefault(slog.New(handler))
	return nil
}

func projectDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("project-dir")
	if dir == "" {
		dir = "."
	}
	return dir
}
