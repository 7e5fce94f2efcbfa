package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"tradepulse/internal/app"
	"tradepulse/internal/config"
	"tradepulse/internal/logger"
)

func main() {
	configPath := os.Getenv("TRADEPULSE_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := setupLogOutput(cfg.App.LogPath); err != nil {
		fmt.Fprintf(os.Stderr, "setup log output: %v\n", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.App.LogLevel)
	config.WatchLogLevel(configPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg)
	if err != nil {
		logger.Errorf("startup failed: %v", err)
		os.Exit(1)
	}
	logger.Infof("tradepulse starting env=%s config=%s", cfg.App.Env, configPath)
	if err := a.Run(ctx); err != nil {
		logger.Errorf("tradepulse exited with error: %v", err)
		os.Exit(1)
	}
	logger.Infof("tradepulse stopped")
}

// setupLogOutput mirrors logs to the configured file and stdout.
func setupLogOutput(path string) error {
	if path == "" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	logger.SetOutput(io.MultiWriter(f, os.Stdout))
	return nil
}
