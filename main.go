package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/vulnbridge/cmd"
)

func main() {
	// Ctrl-C and agent-issued SIGTERM cancel the context so an in-flight
	// paginated fetch stops at the next page boundary.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.ExecuteContext(ctx)
}
