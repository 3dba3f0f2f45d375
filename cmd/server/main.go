package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/medreport-analyzer/internal/api"
	"github.com/medreport-analyzer/internal/app"
	"github.com/medreport-analyzer/internal/config"
	"github.com/medreport-analyzer/internal/logging"
)

func main() {
	// A .env file is optional
	_ = godotenv.Load()

	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize application")
	}
	defer components.Close()

	server, err := api.NewServer(cfg, api.Dependencies{
		Analyzer: components.Analyzer,
		Intake:   components.Intake,
		History:  components.History,
		Metrics:  components.Metrics,
		Logger:   logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create HTTP server")
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	logger.WithField("environment", cfg.Environment).Info("Starting medical report analysis API")

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("Server stopped with error")
		components.Close()
		os.Exit(1)
	}

	logger.Info("Server stopped")
}
