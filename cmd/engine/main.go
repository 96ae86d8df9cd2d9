package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"transformstate/internal/config"
	"transformstate/internal/engine"
	"transformstate/internal/logging"
)

func main() {
	path := flag.String("config", "engine.yml", "engine config (optional; env overrides apply)")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		logging.L().Error("config", "path", *path, "err", err)
		os.Exit(1)
	}
	logging.InitFromEnv(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := engine.Bootstrap(ctx, cfg)
	if err != nil {
		logging.L().Error("bootstrap", "err", err)
		os.Exit(1)
	}
	if err := e.Run(ctx); err != nil {
		logging.L().Error("engine", "err", err)
		os.Exit(1)
	}
}
