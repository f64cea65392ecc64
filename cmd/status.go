package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/netanalyzer/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session status",
	Long: `Query the daemon for the session status: state, device, filter, flush
interval, output file and frame counters.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd.Context(), newClient(cmd), cmd.OutOrStdout(), statusFormat)
	},
}

var statusFormat string

func init() {
	statusCmd.Flags().StringVarP(&statusFormat, "output", "o", "text", "output format: text, json or yaml")
}

func runStatus(ctx context.Context, client ControlClient, out io.Writer, format string) error {
	var st session.Status
	resp, err := client.Status(ctx)
	if err := result(resp, err, "status", &st); err != nil {
		return err
	}

	switch format {
	case "json":
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format result: %w", err)
		}
		fmt.Fprintln(out, string(data))
	case "yaml":
		data, err := yaml.Marshal(st)
		if err != nil {
			return fmt.Errorf("failed to format result: %w", err)
		}
		fmt.Fprint(out, string(data))
	case "text", "":
		writeStatusText(out, st)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
	return nil
}

// statusStyle lays status out as borderless key/value columns.
var statusStyle = func() table.Style {
	s := table.StyleDefault
	s.Options.DrawBorder = false
	s.Options.SeparateColumns = false
	s.Options.SeparateHeader = false
	return s
}()

func writeStatusText(out io.Writer, st session.Status) {
	tw := table.NewWriter()
	tw.SetStyle(statusStyle)
	row := func(k string, v interface{}) { tw.AppendRow(table.Row{k + ":", v}) }

	row("Session", st.ID)
	row("State", st.State.String())
	row("Device", st.Device)
	filter := st.Filter
	if filter == "" {
		filter = "(none)"
	}
	row("Filter", filter)
	row("Flush interval", fmt.Sprintf("%ds", st.FlushInterval))
	row("Output file", st.OutputFile)
	row("Started", st.StartedAt.Format(time.RFC3339))
	if st.LastFlush != nil {
		row("Last flush", st.LastFlush.Format(time.RFC3339))
	}
	row("Conversations", st.Conversations)
	row("Pending errors", st.PendingErrors)
	row("Queued frames", st.QueuedTasks)
	row("Frames captured", st.FramesCaptured)
	row("Frames discarded", st.FramesDiscarded)
	row("Frames dropped", st.FramesDropped)
	row("Dissect failures", st.DissectFailures)
	row("Flushes", fmt.Sprintf("%d (%d failed)", st.Flushes, st.FlushErrors))
	if st.KernelReceived > 0 || st.KernelDropped > 0 {
		row("Kernel received", st.KernelReceived)
		row("Kernel dropped", st.KernelDropped)
	}
	fmt.Fprintln(out, tw.Render())
}
