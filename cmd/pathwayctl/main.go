// Package main runs pathways maintenance commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/petrijr/pathways/internal/cmd/pathwayctl"
	entrypoint "github.com/petrijr/pathways/internal/platform/cmd"
	"github.com/petrijr/pathways/internal/platform/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zl, logger, err := logging.InitTo(entrypoint.ServiceCtl, os.Getenv("PATHWAYS_LOG_LEVEL"), "stderr")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = zl.Sync() }()

	if err := pathwayctl.Main(ctx, os.Args[1:], os.Stdout, logger); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
