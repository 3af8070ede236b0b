package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"cherylchat/internal/app"
	"cherylchat/internal/config"
	"cherylchat/internal/util"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	util.InitLogger(cfg.LogLevel)

	core, err := app.New(cfg, app.Options{})
	if err != nil {
		slog.Error("failed to init app", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := core.Run(ctx); err != nil {
		slog.Error("service stopped", "err", err)
		os.Exit(1)
	}
	slog.Info("service stopped")
}
