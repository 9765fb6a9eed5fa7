package cmd

import (
	"errors"
	"fmt"

	"SignalGuard/internal/integrity"

	"github.com/spf13/cobra"
)

// ErrTampered is returned when at least one signal fails verification.
var ErrTampered = errors.New("one or more signals failed verification")

func newVerifyCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "verify <file|->",
		Short: "Recompute integrity hashes and report signals that do not match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			signals, err := readSignals(cmd, args[0])
			if err != nil {
				return err
			}

			results := integrity.NewVerifier().VerifyMany(signals)
			invalid := 0
			out := cmd.OutOrStdout()
			for i, r := range results {
				if r.IsValid {
					if !quiet {
						fmt.Fprintf(out, "ok      %d %s\n", i, r.SignalID)
					}
					continue
				}
				invalid++
				fmt.Fprintf(out, "INVALID %d %s: %s\n", i, r.SignalID, r.Error)
			}
			fmt.Fprintf(out, "%d verified, %d invalid\n", len(results)-invalid, invalid)

			if invalid > 0 {
				return ErrTampered
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only invalid signals and the summary")
	return cmd
}
