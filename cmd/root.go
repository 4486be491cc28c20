// Package cmd implements the command-line entry points for the openTPT
// appliance: running the render loop in the foreground, and talking to
// an already-running instance over its Unix Domain Socket control plane.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	socketPath string
)

var rootCmd = &cobra.Command{
	Use:   "opentpt",
	Short: "openTPT - in-vehicle motorsport telemetry appliance",
	Long: `openTPT fuses GPS, OBD-II, tyre temperature, radar, and IMU data into
lap timing, pit timing, fuel tracking, and CoPilot road-aware pace notes,
rendered at a fixed frame rate on an in-car display.

Commands:
  start   - run the appliance in the foreground (the render loop)
  status  - query a running instance's uptime and handler diagnostics
  reload  - ask a running instance to re-read settings.json
  validate-track - check a track file and print its detected geometry`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/opentpt/config.yml",
		"boot config file path")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "/var/run/opentpt.sock",
		"control plane socket path")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(validateTrackCmd)
}

func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
