package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/retracehq/retrace/internal/models"
)

func newExecCommand() *cobra.Command {
	var ov overrideFlags

	cmd := &cobra.Command{
		Use:   "exec <test-case-id>",
		Short: "Replay a single test case",
		Long: `Replay one test case outside any regression run.

The captured transcript is recomposed with the given overrides layered on
top of the agent's defaults, executed once against the model backend, and
judged against the case's expectation. The result is persisted as a test
log either way.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := ov.overrides()
			if err != nil {
				return err
			}

			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log, err := app.orch.ExecuteCase(ctx, args[0], overrides)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "log:     %s\n", log.ID)
			fmt.Fprintf(out, "model:   %s\n", log.ModelName)
			fmt.Fprintf(out, "status:  %s (%dms)\n", log.Outcome.Status, log.Outcome.LatencyMS)
			if log.Outcome.Error != "" {
				fmt.Fprintf(out, "error:   %s\n", log.Outcome.Error)
			}
			if log.Outcome.Response != "" {
				fmt.Fprintf(out, "response:\n%s\n", log.Outcome.Response)
			}
			fmt.Fprintf(out, "verdict: %s\n", log.Evaluation.Verdict)
			if log.Evaluation.Feedback != "" {
				fmt.Fprintf(out, "feedback: %s\n", log.Evaluation.Feedback)
			}

			if log.Outcome.Status == models.ExecutionFailed {
				return &RunFailureError{Message: "execution failed: " + log.Outcome.Error}
			}
			if log.Evaluation.Verdict == models.VerdictDeclined {
				return &RunFailureError{Message: "response was declined by the judge"}
			}
			return nil
		},
	}

	ov.register(cmd)
	return cmd
}
