package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/retracehq/retrace/internal/models"
)

func newAgentsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Manage agents",
	}
	cmd.AddCommand(newAgentsListCommand())
	cmd.AddCommand(newAgentsCreateCommand())
	return cmd
}

func newAgentsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close() //nolint:errcheck

			agents, err := app.store.ListAgents(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(agents) == 0 {
				fmt.Fprintln(out, "no agents registered")
				return nil
			}
			for _, agent := range agents {
				cases, err := app.store.ListTestCases(cmd.Context(), agent.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s  %s  %s  %d test case(s)\n",
					agent.ID,
					padRight(agent.Name, colName),
					padRight(agent.DefaultModelName, 24),
					len(cases))
			}
			return nil
		},
	}
}

func newAgentsCreateCommand() *cobra.Command {
	var (
		name         string
		description  string
		model        string
		systemPrompt string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close() //nolint:errcheck

			agent := models.Agent{
				Name:                name,
				Description:         description,
				DefaultModelName:    model,
				DefaultSystemPrompt: systemPrompt,
			}
			if err := app.store.CreateAgent(cmd.Context(), &agent); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created agent %s\n", agent.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Agent name (required)")
	cmd.Flags().StringVar(&description, "description", "", "Agent description")
	cmd.Flags().StringVar(&model, "model", "", "Default model (provider:model)")
	cmd.Flags().StringVar(&systemPrompt, "system-prompt", "", "Default system prompt")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}
