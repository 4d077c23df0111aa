package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/retracehq/retrace/internal/importer"
	"github.com/retracehq/retrace/internal/models"
)

func newImportCommand() *cobra.Command {
	var (
		agentID     string
		name        string
		expectation string
		reference   string
	)

	cmd := &cobra.Command{
		Use:   "import <file>...",
		Short: "Import captured calls or test case files into the store",
		Long: `Import test cases from files.

JSON files are treated as raw captured chat requests (bare or wrapped in a
tracing-export envelope) and split into replayable transcripts. YAML files
are treated as test case documents in the store's own layout and may hold
one case or a list.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close() //nolint:errcheck

			// Fail early instead of half-importing against a missing agent.
			if _, err := app.store.GetAgent(cmd.Context(), agentID); err != nil {
				return fmt.Errorf("resolving agent %q: %w", agentID, err)
			}

			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading %s: %w", path, err)
				}

				var cases []models.TestCase
				switch strings.ToLower(filepath.Ext(path)) {
				case ".yaml", ".yml":
					cases, err = importer.LoadTestCases(data)
					if err != nil {
						return fmt.Errorf("parsing %s: %w", path, err)
					}
				default:
					transcript, err := importer.ParseCapture(data)
					if err != nil {
						return fmt.Errorf("parsing %s: %w", path, err)
					}
					caseName := name
					if caseName == "" {
						caseName = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
					}
					cases = []models.TestCase{{
						Name:              caseName,
						Transcript:        transcript,
						Expectation:       expectation,
						ReferenceResponse: reference,
					}}
				}

				for i := range cases {
					cases[i].AgentID = agentID
					if err := app.store.CreateTestCase(cmd.Context(), &cases[i]); err != nil {
						return fmt.Errorf("storing test case %q: %w", cases[i].Name, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "imported %s as test case %s\n", cases[i].Name, cases[i].ID)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "Agent that owns the imported test cases (required)")
	cmd.Flags().StringVar(&name, "name", "", "Test case name for capture imports (default: file name)")
	cmd.Flags().StringVar(&expectation, "expectation", "", "Acceptance criteria for capture imports")
	cmd.Flags().StringVar(&reference, "reference", "", "Reference response for capture imports")
	_ = cmd.MarkFlagRequired("agent")

	return cmd
}
