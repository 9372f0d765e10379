// Command agentgraph runs tool-using LLM agents described by a YAML config.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/agentgraph-go/internal/cli"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd(version).ExecuteContext(ctx); err != nil {
		var exitErr *cli.ExitError
		code := 1
		if errors.As(err, &exitErr) {
			code = exitErr.Code
		}
		stop()
		os.Exit(code)
	}
}
