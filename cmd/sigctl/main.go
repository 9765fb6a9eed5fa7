package main

import (
	"os"

	"SignalGuard/cmd/sigctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
