package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

var configPath string

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrace",
		Short: "Retrace - replay captured LLM transcripts and run regressions",
		Long: `Retrace captures real LLM-agent call transcripts, replays them with
modified parameters, and runs batches of such replays against stored test
cases to detect behavioral drift.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: retrace.yaml)")

	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		// .env is optional; API keys usually live there during development.
		_ = godotenv.Load()

		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newExecCommand())
	cmd.AddCommand(newImportCommand())
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newAgentsCommand())
	cmd.AddCommand(newLogsCommand())

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
