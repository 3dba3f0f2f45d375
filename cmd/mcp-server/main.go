// Package main provides the MCP stdio entry point. It needs no config file
// or external database: settings come from the environment and history is
// kept in SQLite under the data directory.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/medreport-analyzer/internal/app"
	"github.com/medreport-analyzer/internal/config"
	"github.com/medreport-analyzer/internal/logging"
	"github.com/medreport-analyzer/internal/mcp"
)

func main() {
	// stdout carries protocol traffic, so the fallback logger writes to stderr
	log.SetOutput(os.Stderr)

	_ = godotenv.Load()

	lite := config.LoadLiteConfig()
	if err := lite.EnsureDataDir(); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	cfg := lite.ToConfig()
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

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

	server, err := mcp.NewServer(cfg.MCP, mcp.Dependencies{
		Analyzer: components.Analyzer,
		History:  components.History,
		Logger:   logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create MCP server")
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down MCP server...")
		cancel()
	}()

	logger.WithField("data_dir", lite.DataDir).Info("Starting medical report MCP server")

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("MCP server failed")
		components.Close()
		os.Exit(1)
	}

	logger.Info("MCP server stopped")
}
