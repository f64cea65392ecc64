package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/netanalyzer/internal/command"
	"firestige.xyz/netanalyzer/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the current conversation table",
	Long: `Print the conversation table aggregated so far, in the same format the
daemon writes to the output file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReport(cmd.Context(), newClient(cmd), cmd.OutOrStdout())
	},
}

func runReport(ctx context.Context, client ControlClient, out io.Writer) error {
	var res command.ReportResult
	resp, err := client.Report(ctx)
	if err := result(resp, err, "report", &res); err != nil {
		return err
	}
	return report.Render(out, res.Lines)
}
