// Package main is the entry point for the openTPT telemetry appliance.
package main

import (
	"fmt"
	"os"

	"github.com/SamSkjord/opentpt/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
