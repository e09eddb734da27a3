package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"nexus/internal/api"
	"nexus/internal/daemonctl"
	"nexus/internal/daemonrun"
	"nexus/internal/store"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var logLevel string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the nexus daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel})
		},
	}
	serveCmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the nexus daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			client, err := daemonctl.NewClient(ctx.configValue())
			if err != nil {
				return err
			}
			if client.Healthy(cmd.Context()) {
				fmt.Fprintln(stdout, "Daemon already running")
				return nil
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			fmt.Fprintln(stdout, "Daemon not running, launching...")
			if err := daemonctl.Launch(exe, ctx.configPath); err != nil {
				return err
			}
			if err := daemonctl.WaitForHealthy(cmd.Context(), client, 15*time.Second); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Daemon started")
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the background nexus daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.Stop(daemonrun.PIDPath(ctx.configValue()), 10*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var asJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.configValue())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			renderDaemonStatus(cmd, status)
			return nil
		},
	}
	outputFlags(statusCmd, &asJSON)

	return []*cobra.Command{serveCmd, startCmd, stopCmd, statusCmd}
}

func renderDaemonStatus(cmd *cobra.Command, status api.DaemonStatus) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	for _, line := range renderSectionHeader("System Status", colorize) {
		fmt.Fprintln(stdout, line)
	}
	if status.Running {
		fmt.Fprintln(stdout, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
		workers := fmt.Sprintf("%d busy of %d", status.Workflow.Active, status.Workflow.Workers)
		fmt.Fprintln(stdout, renderStatusLine("Workers", statusInfo, workers, colorize))
		if status.Workflow.LastError != "" {
			fmt.Fprintln(stdout, renderStatusLine("Last error", statusWarn, status.Workflow.LastError, colorize))
		}
	} else {
		fmt.Fprintln(stdout, renderStatusLine("Daemon", statusWarn, "Not running", colorize))
	}
	fmt.Fprintln(stdout, renderStatusLine("Database", statusInfo, status.Driver+" "+status.StorePath, colorize))
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(stdout, line)
	}
	for _, line := range dependencyLines(status.Dependencies, colorize) {
		fmt.Fprintln(stdout, line)
	}
	fmt.Fprintln(stdout)

	stats := status.Workflow.Stats
	for _, line := range renderSectionHeader("Archive", colorize) {
		fmt.Fprintln(stdout, line)
	}
	fmt.Fprintln(stdout, renderStatusLine("Subscriptions", statusInfo, fmt.Sprint(stats.Subscriptions), colorize))
	sections := []struct {
		title string
		rows  [][]string
	}{
		{"Media", countRows(stats.Media, []store.MediaStatus{
			store.MediaPending, store.MediaProcessing, store.MediaCompleted, store.MediaError, store.MediaDuplicate,
		})},
		{"Jobs", countRows(stats.Jobs, []store.JobStatus{
			store.JobPending, store.JobExtracting, store.JobHashing, store.JobTranscribing,
			store.JobEnriching, store.JobCompleted, store.JobError,
		})},
		{"Tasks", countRows(stats.Tasks, []store.TaskStatus{
			store.TaskQueued, store.TaskRunning, store.TaskSucceeded, store.TaskFailed,
		})},
	}
	for _, section := range sections {
		if len(section.rows) == 0 {
			fmt.Fprintln(stdout, renderStatusLine(section.title, statusInfo, "none", colorize))
			continue
		}
		fmt.Fprint(stdout, renderTable([]string{section.title, "Count"}, section.rows, []columnAlignment{alignLeft, alignRight}))
	}
}
