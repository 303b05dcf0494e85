package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"shutterbox/internal/ipc"
)

func newFlushCommand(ctx *commandContext) *cobra.Command {
	var async bool
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Deliver the pending backlog now",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Flush(async)
				if err != nil {
					return err
				}
				if async {
					fmt.Fprintln(out, "Flush requested")
					return nil
				}
				switch {
				case resp.Skipped:
					fmt.Fprintln(out, "A flush is already running; try again shortly")
				case resp.Error != "":
					fmt.Fprintf(out, "Delivered %d, %d still pending\n", resp.Delivered, resp.Remaining)
					return errors.New("flush stopped: " + resp.Error)
				case resp.Delivered == 0 && resp.Remaining == 0:
					fmt.Fprintln(out, "Nothing pending")
				default:
					fmt.Fprintf(out, "Delivered %d, %d still pending\n", resp.Delivered, resp.Remaining)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "Queue the flush on the daemon and return immediately")
	return cmd
}
