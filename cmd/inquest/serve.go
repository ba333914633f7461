package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/osinthq/inquest/internal/server"
)

func newServeCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and metrics listeners",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, *configPath)
			if err != nil {
				return err
			}

			srv, err := server.NewServer(cfg)
			if err != nil {
				return err
			}
			if err := srv.Start(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inquest serving on :%d (metrics on :%d)\n",
				cfg.Server.Port, cfg.Server.MetricsPort)

			// Block until interrupted or a listener fails.
			select {
			case <-ctx.Done():
			case <-serverDone(srv):
			}

			if err := srv.Stop(); err != nil {
				return err
			}
			return interrupted(ctx)
		},
	}
	return cmd
}

func serverDone(srv *server.Server) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		srv.Wait()
		close(done)
	}()
	return done
}
