package main

import (
	"github.com/spf13/cobra"

	"github.com/ijarahub/ijara-messaging/internal/app"
)

func newDevServerCommand(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run the local REST and realtime relay used for development and tests",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := root.cfg.Server
			if addr != "" {
				cfg.Addr = addr
			}

			application, err := app.New(&cfg, root.logger)
			if err != nil {
				return err
			}

			root.logger.Info().Str("addr", cfg.Addr).Msg("starting ijara relay")
			if err := application.Run(cmd.Context()); err != nil {
				return err
			}
			root.logger.Info().Msg("relay stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address override")
	return cmd
}
