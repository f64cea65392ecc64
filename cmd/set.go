package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/netanalyzer/internal/command"
)

// setCmd groups the session setters.
var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Change a session parameter",
	Long: `Change a parameter of the running session.

Subcommands:
  timeout <seconds>  - flush interval, must be positive
  output  <path>     - report output file
  device  <id>       - switch to another device (resets the filter)
  filter  <expr>     - apply a BPF filter; an empty expression clears it`,
}

// getCmd groups the session getters.
var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Read a session parameter",
}

var setTimeoutCmd = &cobra.Command{
	Use:   "timeout <seconds>",
	Short: "Set the flush interval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", args[0], err)
		}
		return runSetTimeout(cmd.Context(), newClient(cmd), cmd.OutOrStdout(), uint32(n))
	},
}

var setOutputCmd = &cobra.Command{
	Use:   "output <path>",
	Short: "Set the report output file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetOutput(cmd.Context(), newClient(cmd), cmd.OutOrStdout(), args[0])
	},
}

var setDeviceCmd = &cobra.Command{
	Use:   "device <id>",
	Short: "Switch the capture device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid device id %q: %w", args[0], err)
		}
		return runSetDevice(cmd.Context(), newClient(cmd), cmd.OutOrStdout(), id)
	},
}

var setFilterCmd = &cobra.Command{
	Use:   "filter [expr...]",
	Short: "Apply a BPF filter",
	Long: `Apply a BPF filter. The arguments are joined with spaces, so quoting
is optional. A rejected filter pauses the session until 'resume'; the
previous filter stays in effect.

Examples:
  netanalyzer set filter tcp port 80
  netanalyzer set filter "udp and not port 53"
  netanalyzer set filter`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetFilter(cmd.Context(), newClient(cmd), cmd.OutOrStdout(), strings.Join(args, " "))
	},
}

var getTimeoutCmd = &cobra.Command{
	Use:   "timeout",
	Short: "Print the flush interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGetTimeout(cmd.Context(), newClient(cmd), cmd.OutOrStdout())
	},
}

var getOutputCmd = &cobra.Command{
	Use:   "output",
	Short: "Print the report output file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGetOutput(cmd.Context(), newClient(cmd), cmd.OutOrStdout())
	},
}

func init() {
	setCmd.AddCommand(setTimeoutCmd)
	setCmd.AddCommand(setOutputCmd)
	setCmd.AddCommand(setDeviceCmd)
	setCmd.AddCommand(setFilterCmd)

	getCmd.AddCommand(getTimeoutCmd)
	getCmd.AddCommand(getOutputCmd)
}

func runSetTimeout(ctx context.Context, client ControlClient, out io.Writer, seconds uint32) error {
	var res command.TimeoutParams
	resp, err := client.SetTimeout(ctx, seconds)
	if err := result(resp, err, "set timeout", &res); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Flush interval set to %ds\n", res.Seconds)
	return nil
}

func runSetOutput(ctx context.Context, client ControlClient, out io.Writer, path string) error {
	var res command.OutputParams
	resp, err := client.SetOutput(ctx, path)
	if err := result(resp, err, "set output", &res); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Output file set to %s\n", res.Path)
	return nil
}

func runSetDevice(ctx context.Context, client ControlClient, out io.Writer, id int) error {
	var res struct {
		DeviceID int    `json:"device_id"`
		Device   string `json:"device"`
	}
	resp, err := client.SetDevice(ctx, id)
	if err := result(resp, err, "set device", &res); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Capturing on device %d (%s), filter cleared\n", res.DeviceID, res.Device)
	return nil
}

func runSetFilter(ctx context.Context, client ControlClient, out io.Writer, expr string) error {
	var res struct {
		Filter string `json:"filter"`
		State  string `json:"state"`
	}
	resp, err := client.SetFilter(ctx, expr)
	if err := result(resp, err, "set filter", &res); err != nil {
		return err
	}
	if res.Filter == "" {
		fmt.Fprintf(out, "✓ Filter cleared, session %s\n", res.State)
		return nil
	}
	fmt.Fprintf(out, "✓ Filter %q applied, session %s\n", res.Filter, res.State)
	return nil
}

func runGetTimeout(ctx context.Context, client ControlClient, out io.Writer) error {
	var res command.TimeoutParams
	resp, err := client.GetTimeout(ctx)
	if err := result(resp, err, "get timeout", &res); err != nil {
		return err
	}
	fmt.Fprintln(out, res.Seconds)
	return nil
}

func runGetOutput(ctx context.Context, client ControlClient, out io.Writer) error {
	var res command.OutputParams
	resp, err := client.GetOutput(ctx)
	if err := result(resp, err, "get output", &res); err != nil {
		return err
	}
	fmt.Fprintln(out, res.Path)
	return nil
}
