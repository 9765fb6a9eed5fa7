package cmd

import (
	"fmt"

	"SignalGuard/internal/integrity"

	"github.com/spf13/cobra"
)

func newHashCmd() *cobra.Command {
	var version int

	cmd := &cobra.Command{
		Use:   "hash <file|->",
		Short: "Seal every signal in a JSON array and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if integrity.Fields(version) == nil {
				return fmt.Errorf("unsupported hash version %d", version)
			}
			signals, err := readSignals(cmd, args[0])
			if err != nil {
				return err
			}

			v := integrity.NewVerifier(integrity.WithVersion(version))
			for i := range signals {
				sealed, err := v.Seal(signals[i])
				if err != nil {
					return fmt.Errorf("signal %d (%s): %w", i, signals[i].ID, err)
				}
				signals[i] = sealed
			}
			return writeJSON(cmd.OutOrStdout(), signals)
		},
	}

	cmd.Flags().IntVar(&version, "hash-version", integrity.CurrentVersion, "canonical field set version")
	return cmd
}
