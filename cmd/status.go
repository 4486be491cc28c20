package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/SamSkjord/opentpt/internal/command"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running instance's uptime and handler diagnostics",
	Run: func(cmd *cobra.Command, args []string) {
		client := command.NewUDSClient(socketPath, 10*time.Second)
		if err := runStatus(cmd.Context(), client, cmd.OutOrStdout()); err != nil {
			exitWithError("status failed", err)
		}
	},
}

// statusClient is the subset of *command.UDSClient runStatus needs,
// narrowed so tests can inject a fake without a real socket.
type statusClient interface {
	Status(ctx context.Context) (*command.Response, error)
}

func runStatus(ctx context.Context, client statusClient, out io.Writer) error {
	resp, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("querying daemon: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("status: %s", resp.Error.Message)
	}

	result, err := json.MarshalIndent(resp.Result, "", "  ")
	if err != nil {
		return fmt.Errorf("formatting result: %w", err)
	}
	fmt.Fprintln(out, string(result))
	return nil
}
