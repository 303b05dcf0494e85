package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shutterbox/internal/daemon"
	"shutterbox/internal/delivery"
	"shutterbox/internal/ipc"
)

func newTestDeliverCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-deliver",
		Short: "Post a 1x1 test image straight to the sink",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if client, err := ipc.Dial(ctx.socketPath()); err == nil {
				defer client.Close()
				resp, err := client.TestDelivery()
				if err != nil {
					return err
				}
				if !resp.Delivered {
					return fmt.Errorf("%s: %s", resp.Message, resp.Error)
				}
				fmt.Fprintln(out, resp.Message)
				return nil
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Sink.URL) == "" {
				return errors.New("sink.url is not configured")
			}
			client := delivery.NewClient(cfg)
			if err := client.Deliver(cmd.Context(), daemon.TestPayload); err != nil {
				return fmt.Errorf("sink rejected test payload: %w", err)
			}
			fmt.Fprintf(out, "test payload delivered to %s\n", client.Endpoint())
			return nil
		},
	}
}
