// Package cmd implements sigctl, an offline tool for sealing and auditing signal files and a
// thin client for a running SignalGuard server.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"SignalGuard/internal/domain/models"

	"github.com/spf13/cobra"
)

// New builds the command tree. Exposed for tests.
func New() *cobra.Command {
	root := &cobra.Command{
		Use:           "sigctl",
		Short:         "Seal, verify and inspect trading signals",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newHashCmd(),
		newVerifyCmd(),
		newRiskCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	root := New()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "error:", err)
		return err
	}
	return nil
}

// readSignals loads a JSON array of signals from path, or stdin when path is "-".
func readSignals(cmd *cobra.Command, path string) ([]models.Signal, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	var signals []models.Signal
	if err := json.NewDecoder(r).Decode(&signals); err != nil {
		return nil, fmt.Errorf("decode signals: %w", err)
	}
	return signals, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
