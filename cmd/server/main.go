// Command server runs the motto submission API.
//
// Configuration comes from ./config.yaml (or CONFIG_PATH) and the
// environment; see internal/config for every setting.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sakif/motto-wall/internal/config"
	"github.com/sakif/motto-wall/internal/logging"
	"github.com/sakif/motto-wall/internal/server"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Run blocks until a signal arrives or a component fails.
	return srv.Run(ctx)
}
