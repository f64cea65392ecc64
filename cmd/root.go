// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/netanalyzer/internal/command"
	"firestige.xyz/netanalyzer/internal/config"

	// Capture engines register themselves by name.
	_ "firestige.xyz/netanalyzer/internal/capture/afpacket"
	_ "firestige.xyz/netanalyzer/internal/capture/file"
	_ "firestige.xyz/netanalyzer/internal/capture/pcap"
)

const defaultSocket = "/var/run/netanalyzer.sock"

var (
	// Global flags
	configFile string
	socketPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "netanalyzer",
	Short: "netanalyzer - live network conversation analyzer",
	Long: `netanalyzer captures frames from a network device, dissects them in a
worker pool and aggregates traffic into bidirectional conversations.

The conversation table is rewritten to the output file every flush interval.
A running daemon is controlled through a Unix Domain Socket:
  - pause, resume and stop the capture
  - change the device, BPF filter, flush interval and output file
  - inspect status, the report and the error queue`,
	Version:       command.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (built-in defaults and ANALYZER_* env when empty)")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", defaultSocket,
		"daemon socket path")

	// Add subcommands
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(errorsCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(devicesCmd)
}

// loadConfig loads the --config file.
func loadConfig() (*config.GlobalConfig, error) {
	return config.Load(configFile)
}

// resolveSocket prefers an explicit --socket, then the socket named in
// --config, then the default.
func resolveSocket(cmd *cobra.Command) string {
	if cmd.Flags().Changed("socket") || configFile == "" {
		return socketPath
	}
	cfg, err := loadConfig()
	if err != nil {
		return socketPath
	}
	return cfg.Control.Socket
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
