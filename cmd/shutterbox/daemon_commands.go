package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shutterbox/internal/api"
	"shutterbox/internal/daemonctl"
	"shutterbox/internal/ipc"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the shutterbox daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx, startLogLevel),
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}
			printStartResult(stdout, result, "Daemon started")
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override logging.level for the launched daemon")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the shutterbox daemon (pending captures stay queued)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if !result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stop request sent")
			} else {
				fmt.Fprintln(stdout, "Stopping daemon...")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var restartLogLevel string
	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the shutterbox daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.Restart(
				ctx.socketPath(),
				ctx.configValue(),
				exe,
				daemonLaunchOptions(ctx, restartLogLevel),
				5*time.Second,
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.WasRunning {
				if result.Stop.ForcedKill && result.Stop.PID > 0 {
					fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.Stop.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}
			printStartResult(stdout, result.Start, "Daemon restarted")
			return nil
		},
	}
	restartCmd.Flags().StringVar(&restartLogLevel, "log-level", "", "Override logging.level for the launched daemon")

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, connectivity and backlog status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			statusResp, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), cfg)
			if err != nil {
				return err
			}
			if statusJSON {
				return writeJSON(cmd, statusResp)
			}
			stdout := cmd.OutOrStdout()
			for _, line := range statusLines(statusResp, shouldColorize(stdout)) {
				fmt.Fprintln(stdout, line)
			}
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the raw status as JSON")

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func printStartResult(stdout io.Writer, result daemonctl.StartResult, done string) {
	switch result.State {
	case daemonctl.StartStateStarted:
		fmt.Fprintln(stdout, done)
	case daemonctl.StartStateAlreadyRunning:
		if done == "Daemon restarted" {
			fmt.Fprintln(stdout, done)
			return
		}
		fmt.Fprintln(stdout, "Daemon already running")
	case daemonctl.StartStateRequested:
		if strings.TrimSpace(result.Message) != "" {
			fmt.Fprintln(stdout, result.Message)
			return
		}
		fmt.Fprintln(stdout, "Start request sent")
	}
}

func statusLines(status *ipc.StatusResponse, colorize bool) []string {
	var lines []string
	lines = append(lines, renderSectionHeader("Daemon", colorize)...)
	stateDetail := humanState(status.State)
	if status.PID > 0 {
		stateDetail += " (pid " + strconv.Itoa(status.PID) + ")"
	}
	lines = append(lines, renderStatusLine("State", stateKind(status.State, status.Running), stateDetail, colorize))
	if status.APIAddress != "" {
		lines = append(lines, renderStatusLine("HTTP API", statusInfo, status.APIAddress, colorize))
	}
	if status.LogPath != "" {
		lines = append(lines, renderStatusLine("Log", statusInfo, status.LogPath, colorize))
	}
	if status.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusError, status.LastError, colorize))
	}
	lines = append(lines, "")

	lines = append(lines, renderSectionHeader("Delivery", colorize)...)
	sinkKind := statusOK
	sink := status.SinkURL
	if strings.TrimSpace(sink) == "" {
		sinkKind, sink = statusError, "not configured (set sink.url)"
	}
	lines = append(lines, renderStatusLine("Sink", sinkKind, sink, colorize))
	if status.Running {
		label, kind := onlineLabel(status.Online)
		lines = append(lines, renderStatusLine("Connectivity", kind, label, colorize))
	}
	schedule := status.Schedule
	if schedule == "" {
		schedule = "disabled"
	}
	lines = append(lines, renderStatusLine("Schedule", statusInfo, schedule, colorize))
	lines = append(lines, renderStatusLine("Netlink", statusInfo, yesNo(status.Netlink), colorize))
	if status.Running {
		lines = append(lines, renderStatusLine("Flushing", statusInfo, yesNo(status.Flushing), colorize))
	}
	lines = append(lines, "")

	lines = append(lines, renderSectionHeader("Queue", colorize)...)
	lines = append(lines, renderStatusLine("Backend", statusInfo, fmt.Sprintf("%s (ack %s)", status.Backend, status.AckMode), colorize))
	if status.QueueDBPath != "" {
		lines = append(lines, renderStatusLine("Database", statusInfo, status.QueueDBPath, colorize))
	}
	lines = append(lines, renderTable(
		[]string{"Metric", "Value"},
		queueStatusRows(status.Queue, status.Outbox, status.Running),
		[]columnAlignment{alignLeft, alignRight},
	))
	return lines
}

func queueStatusRows(queue api.QueueStats, counters api.OutboxCounters, running bool) [][]string {
	oldest := queue.OldestAt
	if oldest == "" {
		oldest = "-"
	}
	rows := [][]string{
		{"Pending", strconv.Itoa(queue.Pending)},
		{"Payload", humanBytes(queue.PayloadBytes)},
		{"Oldest", oldest},
	}
	if !running {
		return rows
	}
	rows = append(rows,
		[]string{"Submitted", strconv.FormatInt(counters.Submitted, 10)},
		[]string{"Delivered", strconv.FormatInt(counters.Delivered, 10)},
		[]string{"Queued", strconv.FormatInt(counters.Queued, 10)},
		[]string{"Lost", strconv.FormatInt(counters.Lost, 10)},
		[]string{"Flushes", strconv.FormatInt(counters.Flushes, 10)},
		[]string{"Flush failures", strconv.FormatInt(counters.FlushFailures, 10)},
	)
	return rows
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext, logLevel string) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{LogLevel: strings.TrimSpace(logLevel)}
	if ctx.socketFlag != nil {
		if socket := strings.TrimSpace(*ctx.socketFlag); socket != "" {
			opts.SocketPath = socket
		}
	}
	opts.ConfigPath = ctx.configPath()
	return opts
}
