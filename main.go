package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coral-p2025/coral/config"
	"github.com/coral-p2025/coral/errors"
	"github.com/coral-p2025/coral/server"
	"go.uber.org/zap"
)

func main() {
	configPath := "config.yaml"

	// Create logger with explicit error handling
	logger, err := newLogger(configPath)
	if err != nil {
		fmt.Printf("Critical error: Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Printf("Warning: Failed to sync logger: %v\n", syncErr)
		}
	}()

	// Set global logger
	errors.SetLogger(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Shutdown signal received",
			zap.String("signal", sig.String()),
			zap.String("action", "initiating graceful shutdown"),
		)
		cancel()
	}()

	if err := run(ctx, configPath, logger); err != nil {
		logger.Fatal("Server startup or runtime error",
			zap.Error(err),
			zap.String("config_path", configPath),
		)
	}
}

// newLogger builds the logger described by the logging section of the
// configuration at configPath.
func newLogger(configPath string) (*zap.Logger, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	return cfg.Logging.NewLogger()
}

// run serves the configuration at configPath until ctx is done.
func run(ctx context.Context, configPath string, logger *zap.Logger) error {
	watcher, err := config.NewConfigWatcher(configPath, logger.Named("config"))
	if err != nil {
		return fmt.Errorf("server initialization failed: %w", err)
	}
	defer watcher.Close()

	srv, err := server.NewServer(watcher, logger)
	if err != nil {
		return fmt.Errorf("server initialization failed: %w", err)
	}
	return srv.Start(ctx)
}
