package cmd

import (
	"fmt"
	"time"

	"SignalGuard/internal/risk"
	xhttp "SignalGuard/pkg/http"

	"github.com/spf13/cobra"
)

func newRiskCmd() *cobra.Command {
	var (
		server  string
		timeout time.Duration
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Show the circuit breaker status of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := xhttp.NewClient(xhttp.WithBaseURL(server), xhttp.WithTimeout(timeout))

			var resp struct {
				Data risk.Status `json:"data"`
			}
			if err := client.GetJSON(cmd.Context(), "/api/risk/status", nil, &resp); err != nil {
				return fmt.Errorf("fetch risk status: %w", err)
			}

			st := resp.Data
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, st)
			}
			fmt.Fprintf(out, "level:       %s\n", st.Level)
			if st.Halted {
				fmt.Fprintf(out, "halted:      yes (%s)\n", st.HaltReason)
			} else {
				fmt.Fprintln(out, "halted:      no")
			}
			fmt.Fprintf(out, "equity:      %.2f (peak %.2f, day start %.2f)\n", st.Equity, st.PeakEquity, st.DayStartEquity)
			fmt.Fprintf(out, "drawdown:    %.2f%% of %.2f%%\n", st.DrawdownPct, st.MaxDrawdownPct)
			fmt.Fprintf(out, "daily pnl:   %.2f%% (limit -%.2f%%)\n", st.DailyPnLPct, st.DailyLossLimitPct)
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "SignalGuard base URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw status as JSON")
	return cmd
}
