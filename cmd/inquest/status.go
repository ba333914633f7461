package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/osinthq/inquest/internal/db"
)

func newStatusCommand(configPath *string) *cobra.Command {
	var (
		limit  int
		status string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stored investigations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, *configPath)
			if err != nil {
				return err
			}

			store, err := db.Open(cfg.Database.Type, cfg.Database.SQLitePath)
			if err != nil {
				return err
			}
			defer store.Close()

			list, err := store.List(ctx, limit, status)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No investigations recorded.")
				return nil
			}

			for _, inv := range list {
				line := fmt.Sprintf("%s  %-10s  %s  %s",
					inv.ID, inv.Status, inv.StartedAt.Format(time.RFC3339), inv.Goal)
				if inv.Error != "" {
					line += "  (" + inv.Error + ")"
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum records to show")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (running, completed, failed)")
	return cmd
}
