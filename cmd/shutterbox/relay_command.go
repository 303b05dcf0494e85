package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"shutterbox/internal/logging"
	"shutterbox/internal/metrics"
	"shutterbox/internal/relay"
)

func newRelayCommand(ctx *commandContext) *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the Telegram relay sink in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.Relay.Bind = bind
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			var opts []relay.Option
			opts = append(opts, relay.WithLogger(logger))
			if cfg.Metrics.Enabled {
				opts = append(opts, relay.WithMetrics(metrics.New()))
			}
			srv, err := relay.New(cfg, opts...)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(runCtx)
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Override relay.bind")
	return cmd
}
