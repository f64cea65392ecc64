package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/netanalyzer/internal/daemon"
)

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause capture",
	Long: `Pause the running session. Frames read while paused are discarded and
the periodic flush is suspended until resume or stop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPause(cmd.Context(), newClient(cmd), cmd.OutOrStdout())
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume capture",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResume(cmd.Context(), newClient(cmd), cmd.OutOrStdout())
	},
}

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the session and the daemon",
	Long: `Stop the capture session. Pending frames are dissected, the report is
flushed one last time and the daemon exits.

With --signal the daemon recorded in the PID file is sent SIGTERM instead,
which has the same effect when the control socket is unavailable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if stopBySignal {
			return runStopSignal(cmd.OutOrStdout())
		}
		return runStop(cmd.Context(), newClient(cmd), cmd.OutOrStdout())
	},
}

var stopBySignal bool

func init() {
	stopCmd.Flags().BoolVar(&stopBySignal, "signal", false, "stop via SIGTERM to the PID in the PID file")
}

func runPause(ctx context.Context, client ControlClient, out io.Writer) error {
	var st stateReply
	resp, err := client.Pause(ctx)
	if err := result(resp, err, "pause", &st); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Session %s\n", st.State)
	return nil
}

func runResume(ctx context.Context, client ControlClient, out io.Writer) error {
	var st stateReply
	resp, err := client.Resume(ctx)
	if err := result(resp, err, "resume", &st); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Session %s\n", st.State)
	return nil
}

func runStop(ctx context.Context, client ControlClient, out io.Writer) error {
	resp, err := client.Stop(ctx)
	if err := result(resp, err, "stop", nil); err != nil {
		return err
	}
	fmt.Fprintln(out, "✓ Session stopped, final report flushed on exit")
	return nil
}

func runStopSignal(out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := daemon.StopDaemon(cfg.Control.PIDFile, 15*time.Second); err != nil {
		return err
	}
	fmt.Fprintln(out, "✓ Daemon stopped")
	return nil
}
