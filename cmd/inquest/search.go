package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/osinthq/inquest/internal/safety"
	"github.com/osinthq/inquest/internal/tools"
)

func newSearchCommand(configPath *string) *cobra.Command {
	var tool string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a one-shot tool query outside the investigation loop",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, *configPath)
			if err != nil {
				return err
			}

			query := strings.Join(args, " ")
			executor := tools.NewExecutor(buildRegistry(),
				time.Duration(cfg.Agent.ToolTimeoutSeconds)*time.Second)

			result, err := executor.Execute(ctx, tool, tools.Args{"query": query})
			if err := interrupted(ctx); err != nil {
				return err
			}
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			// CLI output is a publication boundary like any other.
			scrubbed, piiFound, _ := safety.NewRedactor().Scrub(string(data))
			fmt.Fprintln(cmd.OutOrStdout(), scrubbed)
			if piiFound > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Note: %d PII item(s) redacted.\n", piiFound)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tool, "tool", "entity_search", "tool to query")
	return cmd
}
