package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/retracehq/retrace/internal/httpapi"
	"github.com/retracehq/retrace/internal/models"
	"github.com/retracehq/retrace/internal/orchestrate"
)

func newRunCommand() *cobra.Command {
	var (
		ov        overrideFlags
		workers   int
		serverURL string
	)

	cmd := &cobra.Command{
		Use:   "run <agent-id>",
		Short: "Run a regression over an agent's test cases",
		Long: `Run a regression over every test case owned by an agent.

Each case replays its captured transcript with the given overrides layered
on top of the agent's defaults, then the response is judged against the
case's expectation. Failed executions are reported, not retried.

With --server the run executes on a remote retrace instance and this
command polls its status until the run reaches a terminal state.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := ov.overrides()
			if err != nil {
				return err
			}
			if serverURL != "" {
				return runRemote(cmd, serverURL, args[0], overrides)
			}
			return runLocal(cmd, args[0], overrides, workers)
		},
	}

	ov.register(cmd)
	cmd.Flags().IntVar(&workers, "workers", 0, "Number of concurrent workers (default: from config)")
	cmd.Flags().StringVar(&serverURL, "server", "", "Run against a remote retrace instance (base URL)")

	return cmd
}

func runLocal(cmd *cobra.Command, agentID string, overrides models.Overrides, workers int) error {
	// CLI flag overrides config
	var opts []orchestrate.Option
	if workers > 0 {
		opts = append(opts, orchestrate.WithWorkers(workers))
	}

	app, err := newApp(opts...)
	if err != nil {
		return err
	}
	defer app.Close() //nolint:errcheck

	reporter := newRunReporter(cmd.OutOrStdout())
	app.orch.OnProgress(reporter.Observe)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := app.orch.Run(ctx, agentID, overrides)
	if err != nil {
		return err
	}

	reporter.PrintSummary(run)
	return runExitError(run)
}

func runRemote(cmd *cobra.Command, serverURL, agentID string, overrides models.Overrides) error {
	client := httpapi.NewClient(serverURL)
	reporter := newRunReporter(cmd.OutOrStdout())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := client.StartRun(ctx, agentID, overrides)
	if err != nil {
		return fmt.Errorf("starting remote run: %w", err)
	}

	if !run.Status.Terminal() {
		run, err = client.WaitForRun(ctx, run.ID, reporter.PollLine)
		if err != nil {
			return fmt.Errorf("waiting for run %s: %w", run.ID, err)
		}
	}

	reporter.PrintSummary(run)
	return runExitError(run)
}

// runExitError maps a terminal run onto the command's exit contract: a run
// that could not proceed is a runtime error, a completed run with failed
// or declined cases exits 1, a clean run exits 0.
func runExitError(run models.RegressionRun) error {
	if run.Status == models.RunFailed {
		return fmt.Errorf("run %s failed: %s", run.ID, run.Error)
	}
	if run.FailedCount > 0 || run.DeclinedCount > 0 {
		return &RunFailureError{
			Message: fmt.Sprintf("run %s completed with %d failed execution(s) and %d declined verdict(s)",
				run.ID, run.FailedCount, run.DeclinedCount),
		}
	}
	return nil
}
