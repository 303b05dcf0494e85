package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"shutterbox/internal/ipc"
	"shutterbox/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit := lines
			if limit < 0 {
				limit = 0
			}
			offset := int64(-1)
			if limit == 0 {
				offset = 0
			}
			out := cmd.OutOrStdout()

			client, err := ipc.Dial(ctx.socketPath())
			if err != nil {
				if follow {
					return wrapDialError(err, ctx.socketPath())
				}
				return printLocalLogs(cmd.Context(), ctx, out, offset, limit)
			}
			defer client.Close()

			runCtx := cmd.Context()
			printed := false
			for {
				resp, err := client.LogTail(ipc.LogTailRequest{
					Offset:     offset,
					Limit:      limit,
					Follow:     follow,
					WaitMillis: 1000,
				})
				if err != nil {
					return fmt.Errorf("tail logs: %w", err)
				}
				if resp == nil {
					return errors.New("log tail response missing")
				}
				for _, line := range resp.Lines {
					fmt.Fprintln(out, line)
					printed = true
				}
				offset = resp.Offset
				limit = 0
				if !follow {
					if !printed {
						fmt.Fprintln(out, "No log entries available")
					}
					return nil
				}
				select {
				case <-runCtx.Done():
					return nil
				default:
				}
			}
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of lines to show (0 for all)")
	return cmd
}

// printLocalLogs reads the current log pointer when no daemon is running.
func printLocalLogs(runCtx context.Context, ctx *commandContext, out io.Writer, offset int64, limit int) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	path := filepath.Join(cfg.Paths.LogDir, "shutterbox.log")
	result, err := logs.Tail(runCtx, path, logs.TailOptions{Offset: offset, Limit: limit})
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(result.Lines) == 0 {
		fmt.Fprintln(out, "No log entries available")
		return nil
	}
	for _, line := range result.Lines {
		fmt.Fprintln(out, line)
	}
	return nil
}
