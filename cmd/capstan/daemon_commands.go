package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"capstan/internal/daemonctl"
	"capstan/internal/ipc"
)

const (
	stopRequestTimeout  = 5 * time.Second
	startReadyTimeout   = 10 * time.Second
	diagnosticFlagUsage = "Enable diagnostic mode with a separate DEBUG log file"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newStartCommand(ctx),
		newStopCommand(ctx),
		newRestartCommand(ctx),
		newStatusCommand(ctx),
	}
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	var diagnostic bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the capstan daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			opts := daemonLaunchOptions(ctx, diagnostic)
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, ctx.configValue(), opts, startReadyTimeout)
			if err != nil {
				return err
			}
			if result.Launched {
				fmt.Fprintln(out, "Daemon not running, launching...")
			}
			reportStartOutcome(out, result, "Daemon started", "Daemon already running")
			return nil
		},
	}
	cmd.Flags().BoolVar(&diagnostic, "diagnostic", false, diagnosticFlagUsage)
	return cmd
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the capstan daemon (completely terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), stopRequestTimeout)
			switch {
			case errors.Is(err, daemonctl.ErrDaemonNotRunning):
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			case err != nil:
				return err
			}
			if result.StopAcknowledged {
				fmt.Fprintln(out, "Stopping daemon workflow...")
			} else {
				fmt.Fprintln(out, "Stop request sent")
			}
			reportProcessExit(out, result)
			return nil
		},
	}
}

func newRestartCommand(ctx *commandContext) *cobra.Command {
	var diagnostic bool
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the capstan daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			opts := daemonLaunchOptions(ctx, diagnostic)
			result, err := daemonctl.Restart(ctx.socketPath(), ctx.configValue(), exe, opts, stopRequestTimeout, startReadyTimeout)
			if err != nil {
				return err
			}
			if result.WasRunning {
				reportProcessExit(out, result.Stop)
			}
			reportStartOutcome(out, result.Start, "Daemon restarted", "Daemon restarted")
			return nil
		},
	}
	cmd.Flags().BoolVar(&diagnostic, "diagnostic", false, diagnosticFlagUsage)
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and download status",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, resp)
			}
			printStatusReport(cmd, resp)
			return nil
		},
	}
}

// reportStartOutcome prints the result of a start attempt. started and
// alreadyRunning let restart collapse both outcomes into one message.
func reportStartOutcome(w io.Writer, result daemonctl.StartResult, started, alreadyRunning string) {
	switch result.State {
	case daemonctl.StartStateStarted:
		fmt.Fprintln(w, started)
	case daemonctl.StartStateAlreadyRunning:
		fmt.Fprintln(w, alreadyRunning)
	case daemonctl.StartStatePending:
		if msg := strings.TrimSpace(result.Message); msg != "" {
			fmt.Fprintln(w, msg)
			return
		}
		fmt.Fprintln(w, "Start request sent")
	}
}

func reportProcessExit(w io.Writer, result daemonctl.StopResult) {
	if result.ForcedKill && result.PID > 0 {
		fmt.Fprintf(w, "Stopping daemon process (pid %d)...\n", result.PID)
	}
	fmt.Fprintln(w, "Daemon stopped")
}

func printStatusReport(cmd *cobra.Command, resp *ipc.StatusResponse) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(stdout, line)
	}
	fmt.Fprintln(stdout, renderStatusLine("Workflow", workflowStatusKind(resp), workflowStatusDetail(resp), colorize))
	if resp.ImportQueue > 0 {
		fmt.Fprintln(stdout, renderStatusLine("Import queue", statusInfo, fmt.Sprintf("%d pending", resp.ImportQueue), colorize))
	}
	if lastErr := strings.TrimSpace(resp.LastError); lastErr != "" {
		fmt.Fprintln(stdout, renderStatusLine("Last error", statusError, lastErr, colorize))
	}
	if resp.SnapshotPath != "" {
		fmt.Fprintln(stdout, renderStatusLine("Snapshot", statusInfo, resp.SnapshotPath, colorize))
	}
	if resp.HistoryPath != "" {
		fmt.Fprintln(stdout, renderStatusLine("History", statusInfo, resp.HistoryPath, colorize))
	}

	if len(resp.Components) > 0 {
		fmt.Fprintln(stdout)
		for _, line := range renderSectionHeader("Components", colorize) {
			fmt.Fprintln(stdout, line)
		}
		for _, component := range resp.Components {
			detail := strings.TrimSpace(component.Detail)
			if detail == "" {
				if component.Ready {
					detail = "Ready"
				} else {
					detail = "Not ready"
				}
			}
			fmt.Fprintln(stdout, renderStatusLine(component.Name, statusKindForReady(component.Ready), detail, colorize))
		}
	}

	if len(resp.Volumes) > 0 {
		fmt.Fprintln(stdout)
		for _, line := range renderSectionHeader("Volumes", colorize) {
			fmt.Fprintln(stdout, line)
		}
		for _, vol := range resp.Volumes {
			fmt.Fprintln(stdout, renderStatusLine(vol.Path, statusKindForLevel(vol.Level), volumeStatusDetail(vol), colorize))
		}
	}

	fmt.Fprintln(stdout)
	for _, line := range renderSectionHeader("Downloads", colorize) {
		fmt.Fprintln(stdout, line)
	}
	if resp.LastDownload != nil {
		fmt.Fprintln(stdout, renderStatusLine("Current", statusInfo, describeLastDownload(*resp.LastDownload), colorize))
	}
	rows := buildStatsRows(resp.Stats)
	if len(rows) == 0 {
		fmt.Fprintln(stdout, "No downloads")
		return
	}
	table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
	fmt.Fprint(stdout, table)
}

func workflowStatusKind(resp *ipc.StatusResponse) statusKind {
	if resp.Running {
		return statusOK
	}
	return statusWarn
}

func workflowStatusDetail(resp *ipc.StatusResponse) string {
	if !resp.Running {
		return "Stopped"
	}
	detail := "Running"
	if resp.PID > 0 {
		detail = fmt.Sprintf("Running (pid %d)", resp.PID)
	}
	if resp.QueueActive {
		detail += ", downloads in progress"
	}
	return detail
}

func volumeStatusDetail(vol ipc.VolumeStatus) string {
	detail := fmt.Sprintf("%s free of %s",
		formatSizeCell(int64(vol.FreeBytes)),
		formatSizeCell(int64(vol.TotalBytes)))
	if vol.Primary {
		detail += " (staging)"
	}
	return detail
}

func describeLastDownload(d ipc.Download) string {
	return fmt.Sprintf("#%d %s (%s, %s)", d.ID, downloadTitle(d), formatStatusLabel(d.Status), formatProgressSummary(d))
}

func formatProgressSummary(d ipc.Download) string {
	summary := fmt.Sprintf("%.1f%%", d.Percent)
	if d.DownloadRate > 0 {
		summary += " at " + formatRateCell(d.DownloadRate)
	}
	return summary
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve daemon executable: %w", err)
	}
	return exe, nil
}

// daemonLaunchOptions carries the caller's --config and --log-level flags
// through to the spawned daemon process.
func daemonLaunchOptions(ctx *commandContext, diagnostic bool) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{
		Diagnostic: diagnostic,
		ConfigPath: trimmedFlag(ctx.configFlag),
		LogLevel:   trimmedFlag(ctx.logLevelFlag),
	}
	return opts
}

func trimmedFlag(flag *string) string {
	if flag == nil {
		return ""
	}
	return strings.TrimSpace(*flag)
}
