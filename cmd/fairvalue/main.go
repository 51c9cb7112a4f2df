package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fairvalue-engine/internal/cli"
	"fairvalue-engine/internal/security"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cli.NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", security.MaskError(err))
		stop()
		os.Exit(1)
	}
}
