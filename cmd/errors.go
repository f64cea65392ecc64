package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/netanalyzer/internal/command"
)

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Show or clear the session error queue",
	Long: `Print queued capture and filter errors, oldest first.

With --clear N the N oldest entries are removed instead; N larger than the
queue clears it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient(cmd)
		if cmd.Flags().Changed("clear") {
			return runClearErrors(cmd.Context(), client, cmd.OutOrStdout(), errorsClear)
		}
		return runErrors(cmd.Context(), client, cmd.OutOrStdout())
	},
}

var errorsClear int

func init() {
	errorsCmd.Flags().IntVar(&errorsClear, "clear", 0, "remove the N oldest errors")
}

func runErrors(ctx context.Context, client ControlClient, out io.Writer) error {
	var res command.ErrorsResult
	resp, err := client.Errors(ctx)
	if err := result(resp, err, "errors", &res); err != nil {
		return err
	}
	if res.Count == 0 {
		fmt.Fprintln(out, "No pending errors.")
		return nil
	}
	fmt.Fprintf(out, "%d pending error(s):\n", res.Count)
	for i, e := range res.Errors {
		fmt.Fprintf(out, "%3d  %s  %s\n", i+1, e.Time.Format(time.RFC3339), e.Message)
	}
	return nil
}

func runClearErrors(ctx context.Context, client ControlClient, out io.Writer, n int) error {
	var res command.ClearErrorsResult
	resp, err := client.ClearErrors(ctx, n)
	if err := result(resp, err, "clear errors", &res); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Cleared %d error(s), %d remaining\n", res.Cleared, res.Remaining)
	return nil
}
