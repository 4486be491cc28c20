package cmd

import (
	"context"

	"github.com/SamSkjord/opentpt/internal/orchestrator"
)

// appRunner is the subset of *orchestrator.Orchestrator the start
// command drives; it exists so tests can inject a fake instead of
// booting every sensor handler.
type appRunner interface {
	Run(ctx context.Context) error
	Shutdown(ctx context.Context)
}

// bootApp constructs the appliance. Overridden in tests.
var bootApp = func(ctx context.Context, bootConfigPath string) (appRunner, error) {
	return orchestrator.Boot(ctx, bootConfigPath)
}
