package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"scribeflow/internal/bootstrap"
	"scribeflow/internal/config"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := bootstrap.NewLogger(cfg.LogLevel, os.Stderr)
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Info("no .env file found, using environment variables")
	}

	// Set Gin mode (default to release mode)
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bootstrap.Serve(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		stop()
		os.Exit(1)
	}
}
