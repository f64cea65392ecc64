package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/netanalyzer/internal/config"
	"firestige.xyz/netanalyzer/internal/daemon"
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the capture daemon",
	Long: `Run the netanalyzer daemon.

The daemon will:
  1. Load configuration from the config file and ANALYZER_* env
  2. Initialize logging and metrics
  3. Open the capture device and start the session
  4. Start the UDS server for CLI control
  5. Flush the conversation table every flush interval
  6. Exit when the session stops, on SIGTERM/SIGINT, or on daemon_shutdown

Flags override the matching configuration keys.

Examples:
  netanalyzer devices
  netanalyzer daemon -d 2 -t 10 -o /tmp/report.txt -f "tcp port 443"
  netanalyzer daemon --engine file --file trace.pcap -o trace-report.txt
  netanalyzer daemon -b -c /etc/netanalyzer/config.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		if daemonBackground {
			runBackground(cmd)
			return
		}
		if err := runDaemon(cmd); err != nil {
			slog.Error("daemon failed", "error", err)
			exitWithError("daemon failed", err)
		}
	},
}

var (
	daemonDevice     int
	daemonTimeout    uint32
	daemonOutput     string
	daemonFilter     string
	daemonEngine     string
	daemonFiles      []string
	daemonPIDFile    string
	daemonBackground bool
	daemonLogFile    string
)

func init() {
	f := daemonCmd.Flags()
	f.IntVarP(&daemonDevice, "device", "d", 1, "1-based capture device id (see 'netanalyzer devices')")
	f.Uint32VarP(&daemonTimeout, "timeout", "t", 5, "flush interval in seconds")
	f.StringVarP(&daemonOutput, "output", "o", "", "report output file")
	f.StringVarP(&daemonFilter, "filter", "f", "", "BPF filter expression")
	f.StringVarP(&daemonEngine, "engine", "e", "", "capture engine: pcap, afpacket or file")
	f.StringSliceVar(&daemonFiles, "file", nil, "capture file to replay (file engine, repeatable)")
	f.StringVarP(&daemonPIDFile, "pidfile", "p", "", "PID file path")
	f.BoolVarP(&daemonBackground, "background", "b", false, "detach and run in the background")
	f.StringVar(&daemonLogFile, "log-file", "", "stdout/stderr destination when running in the background")
}

// flagOverrides maps explicitly set daemon flags onto configuration keys.
func flagOverrides(cmd *cobra.Command) daemon.Override {
	flags := cmd.Flags()
	return func(cfg *config.GlobalConfig) {
		if flags.Changed("device") {
			cfg.Session.DeviceID = daemonDevice
		}
		if flags.Changed("timeout") {
			cfg.Session.FlushInterval = daemonTimeout
		}
		if flags.Changed("output") {
			cfg.Session.Output = daemonOutput
		}
		if flags.Changed("filter") {
			cfg.Session.Filter = daemonFilter
		}
		if flags.Changed("engine") {
			cfg.Capture.Engine = daemonEngine
		}
		if flags.Changed("file") {
			cfg.Capture.Files = daemonFiles
			if !flags.Changed("engine") {
				cfg.Capture.Engine = "file"
			}
		}
		if flags.Changed("pidfile") {
			cfg.Control.PIDFile = daemonPIDFile
		}
		if flags.Changed("socket") {
			cfg.Control.Socket = socketPath
		}
	}
}

func runDaemon(cmd *cobra.Command) error {
	d, err := daemon.New(configFile, flagOverrides(cmd))
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Run main loop (blocks until shutdown)
	return d.Run()
}

// runBackground re-executes the daemon command detached and waits for its
// control socket.
func runBackground(cmd *cobra.Command) {
	d, err := daemon.New(configFile, flagOverrides(cmd))
	if err != nil {
		exitWithError("invalid configuration", err)
	}
	socket := d.Config().Control.Socket

	pid, err := daemon.Spawn(foregroundArgs(os.Args[1:]), socket, daemonLogFile, 10*time.Second)
	if err != nil {
		exitWithError("failed to start daemon in background", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "netanalyzer daemon started (pid %d, socket %s)\n", pid, socket)
}

// foregroundArgs drops the background flag from args.
func foregroundArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == "-b" || a == "--background" || strings.HasPrefix(a, "--background=") {
			continue
		}
		out = append(out, a)
	}
	return out
}
