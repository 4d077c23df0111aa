package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLogsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs <run-id>",
		Short: "List the test logs written for a regression run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close() //nolint:errcheck

			run, err := app.store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			logs, err := app.store.ListLogs(cmd.Context(), run.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s (%s): %d log(s)\n\n", run.ID, run.Status, len(logs))
			for _, log := range logs {
				tc, err := app.store.GetTestCase(cmd.Context(), log.TestCaseID)
				caseName := log.TestCaseID
				if err == nil {
					caseName = tc.Name
				}
				fmt.Fprintf(out, "%s %s %s %6dms",
					padRight(truncateName(caseName, colName), colName),
					padRight(statusGlyph(log.Outcome.Status), colStatus),
					padRight(verdictLabel(log.Evaluation.Verdict), colVerdict),
					log.Outcome.LatencyMS)
				if log.Outcome.Error != "" {
					fmt.Fprintf(out, "  %s", log.Outcome.Error)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	return cmd
}
