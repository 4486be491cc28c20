package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var windowed bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the appliance in the foreground",
	Long: `Boot every sensor handler, domain engine, and the render loop, then
block until interrupted or the renderer fails past its crash-recovery
budget.

Exit codes: 0 normal shutdown, 1 fatal init failure, 2 unrecovered
render loop failure.`,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runStart(cmd.Context(), configFile, windowed, cmd.OutOrStdout()))
	},
}

func init() {
	startCmd.Flags().BoolVarP(&windowed, "windowed", "w", false,
		"run in a window instead of fullscreen")
}

func runStart(ctx context.Context, bootConfigPath string, windowed bool, out io.Writer) int {
	app, err := bootApp(ctx, bootConfigPath)
	if err != nil {
		fmt.Fprintf(out, "fatal: %v\n", err)
		return 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		if _, ok := <-sigCh; ok {
			fmt.Fprintln(out, "shutdown signal received")
			cancel()
		}
	}()

	if windowed {
		fmt.Fprintln(out, "running windowed")
	}

	runErr := app.Run(runCtx)
	app.Shutdown(context.Background())

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		fmt.Fprintf(out, "render loop exited: %v\n", runErr)
		return 2
	}
	return 0
}
