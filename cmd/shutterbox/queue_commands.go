package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"shutterbox/internal/api"
	"shutterbox/internal/ipc"
	"shutterbox/internal/queueaccess"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage pending captures",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var newestFirst bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending captures (payloads are not shown)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access queueaccess.Access) error {
				items, err := access.List(cmd.Context())
				if err != nil {
					return err
				}
				if newestFirst {
					items = api.SortItemsNewestFirst(items)
				}
				if asJSON {
					return writeJSON(cmd, api.QueueListResponse{Items: items})
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Capture", "Size", "Queued"},
					queueListRows(items),
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print items as JSON")
	cmd.Flags().BoolVar(&newestFirst, "newest-first", false, "Show the most recent capture first")
	return cmd
}

func queueListRows(items []api.PendingItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		captureID := item.CaptureID
		if captureID == "" {
			captureID = "-"
		}
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			captureID,
			humanBytes(int64(item.Bytes)),
			item.CreatedAt,
		})
	}
	return rows
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard every pending capture",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return ctx.withAccess(func(access queueaccess.Access) error {
				if !yes {
					stats, err := access.Stats(cmd.Context())
					if err != nil {
						return err
					}
					if stats.Pending == 0 {
						fmt.Fprintln(out, "Queue is empty")
						return nil
					}
					return fmt.Errorf("refusing to discard %d pending captures without --yes", stats.Pending)
				}
				removed, err := access.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Discarded %d pending captures\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm that pending captures should be discarded")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the queue store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access queueaccess.Access) error {
				health, err := access.Health(cmd.Context())
				if err != nil {
					return err
				}
				printQueueHealth(cmd.OutOrStdout(), health, shouldColorize(cmd.OutOrStdout()))
				if health.Error != "" || !health.IntegrityCheck {
					return fmt.Errorf("queue store unhealthy")
				}
				return nil
			})
		},
	}
}

func printQueueHealth(out io.Writer, health ipc.QueueHealthResponse, colorize bool) {
	check := func(ok bool) statusKind {
		if ok {
			return statusOK
		}
		return statusError
	}
	for _, line := range renderSectionHeader("Queue Store", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Backend", statusInfo, health.Backend, colorize))
	fmt.Fprintln(out, renderStatusLine("Path", statusInfo, health.DBPath, colorize))
	fmt.Fprintln(out, renderStatusLine("Schema", statusInfo, health.SchemaVersion, colorize))
	fmt.Fprintln(out, renderStatusLine("Exists", check(health.DatabaseExists), yesNo(health.DatabaseExists), colorize))
	fmt.Fprintln(out, renderStatusLine("Readable", check(health.DatabaseReadable), yesNo(health.DatabaseReadable), colorize))
	fmt.Fprintln(out, renderStatusLine("Integrity", check(health.IntegrityCheck), yesNo(health.IntegrityCheck), colorize))
	fmt.Fprintln(out, renderStatusLine("Items", statusInfo, strconv.Itoa(health.TotalItems), colorize))
	fmt.Fprintln(out, renderStatusLine("Payload", statusInfo, humanBytes(health.Queue.PayloadBytes), colorize))
	if health.FreeBytes > 0 {
		fmt.Fprintln(out, renderStatusLine("Free space", statusInfo, humanBytes(int64(health.FreeBytes)), colorize))
	}
	if health.Error != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, health.Error, colorize))
	}
}
