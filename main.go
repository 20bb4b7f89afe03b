// ./main.go
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/guidecap-cli/cmd"
)

// main is the entry point for the guidecap CLI application.
func main() {
	// Interrupt signals cancel the run context so the browser and any open
	// database pool shut down cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.Execute(ctx)
}
