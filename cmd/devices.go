package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/netanalyzer/internal/capture"
	"firestige.xyz/netanalyzer/internal/command"
	"firestige.xyz/netanalyzer/internal/core"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture devices",
	Long: `List the devices of the configured capture engine with the 1-based ids
accepted by 'daemon -d' and 'set device'. A running daemon is asked first;
without one the engine is opened locally.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDevices(cmd.Context(), newClient(cmd), cmd.OutOrStdout(), localDevices)
	},
}

// localDevices lists devices of the configured engine without a daemon.
func localDevices() ([]command.DeviceInfo, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	src, err := capture.New(cfg.Capture.Engine, capture.EngineConfig{Files: cfg.Capture.Files})
	if err != nil {
		return nil, err
	}
	return command.ListDevices(src)
}

func runDevices(ctx context.Context, client ControlClient, out io.Writer,
	local func() ([]command.DeviceInfo, error)) error {
	var res command.DevicesResult
	resp, err := client.Devices(ctx)
	switch {
	case errors.Is(err, core.ErrDaemonNotRunning):
		devs, lerr := local()
		if lerr != nil {
			return fmt.Errorf("list devices: %w", lerr)
		}
		res.Devices = devs
	default:
		if err := result(resp, err, "devices", &res); err != nil {
			return err
		}
	}

	if len(res.Devices) == 0 {
		fmt.Fprintln(out, "No capture devices found.")
		return nil
	}
	for _, d := range res.Devices {
		if d.Description == "" || d.Description == d.Name {
			fmt.Fprintf(out, "%d) %s\n", d.ID, d.Name)
			continue
		}
		fmt.Fprintf(out, "%d) %s (%s)\n", d.ID, d.Description, d.Name)
	}
	return nil
}
