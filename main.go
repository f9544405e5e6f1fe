package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lancedesk/lancedesk/pkg/config"
	"github.com/lancedesk/lancedesk/pkg/utils"
)

// main wires configuration, the database and the HTTP server together and
// blocks until the process receives an interrupt or termination signal.
func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	// Initialize logging system
	utils.InitLogger()
	logger := utils.GetLogger()

	cfg, cfgPath, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	logger.Info("Configuration loaded", "path", cfgPath, "driver", cfg.DBDriver())

	server, err := NewServer(cfg)
	if err != nil {
		logger.Error("Failed to initialize server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Error("Server terminated", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped")
}
