package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/SamSkjord/opentpt/internal/command"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Ask a running instance to re-read settings.json",
	Long: `Send a reload to the running instance over its control socket.
Only settings.json is re-read; the render loop keeps running and the
currently loaded track is unaffected.`,
	Run: func(cmd *cobra.Command, args []string) {
		client := command.NewUDSClient(socketPath, 10*time.Second)
		if err := runReload(cmd.Context(), client, cmd.OutOrStdout()); err != nil {
			exitWithError("reload failed", err)
		}
	},
}

// reloadClient is the subset of *command.UDSClient runReload needs,
// narrowed so tests can inject a fake without a real socket.
type reloadClient interface {
	Reload(ctx context.Context) (*command.Response, error)
}

func runReload(ctx context.Context, client reloadClient, out io.Writer) error {
	resp, err := client.Reload(ctx)
	if err != nil {
		return fmt.Errorf("sending reload: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("reload: %s", resp.Error.Message)
	}
	fmt.Fprintln(out, "settings reloaded")
	return nil
}
