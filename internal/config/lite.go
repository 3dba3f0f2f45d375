// Package config provides configuration management for the report analyzer.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/medreport-analyzer/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no config files or external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for data files

	// Cache settings
	CacheMaxItems int           // Maximum items in memory cache
	CacheTTL      time.Duration // Default cache TTL

	// Reasoning settings
	Provider string // openai, gemini, none
	APIKey   string // Optional: enables the external reasoning path
	Model    string // Optional: overrides the provider default

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".medreport")

	return &LiteConfig{
		DataDir:       dataDir,
		CacheMaxItems: 1000,
		CacheTTL:      24 * time.Hour,
		Provider:      "openai",
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("MEDREPORT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("MEDREPORT_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("MEDREPORT_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	if v := os.Getenv("MEDREPORT_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("MEDREPORT_MODEL"); v != "" {
		cfg.Model = v
	}
	switch cfg.Provider {
	case "gemini":
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	default:
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if v := os.Getenv("MEDREPORT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MEDREPORT_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// HistoryDBPath returns the path to the history SQLite database.
func (c *LiteConfig) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

// ToConfig expands the lite settings into a full configuration so the same
// wiring code serves both modes. Logs go to stderr because stdout may carry
// protocol traffic.
func (c *LiteConfig) ToConfig() *domain.Config {
	model := c.Model
	baseURL := ""
	switch c.Provider {
	case "gemini":
		if model == "" {
			model = "gemini-2.5-flash-lite"
		}
	default:
		if model == "" {
			model = "gpt-4o-mini"
		}
		baseURL = "https://api.openai.com/v1"
	}

	return &domain.Config{
		Environment: "development",
		Server: domain.ServerConfig{
			Host:        "127.0.0.1",
			Port:        8080,
			MaxUploadMB: 10,
			RateLimit:   5,
			RateBurst:   10,
		},
		Analysis: domain.AnalysisConfig{
			MinExternalChars: 50,
			MaxInputChars:    12000,
			ExternalTimeout:  45 * time.Second,
		},
		Reasoning: domain.ReasoningConfig{
			Provider:  c.Provider,
			APIKey:    c.APIKey,
			BaseURL:   baseURL,
			Model:     model,
			MaxTokens: 1500,
			Timeout:   40 * time.Second,
			RateLimit: 2,
			Breaker: domain.BreakerConfig{
				MaxRequests:  3,
				Interval:     60 * time.Second,
				Timeout:      30 * time.Second,
				MinRequests:  3,
				FailureRatio: 0.6,
			},
		},
		Cache: domain.CacheConfig{
			Backend:    "memory",
			DefaultTTL: c.CacheTTL,
			MaxItems:   c.CacheMaxItems,
		},
		History: domain.HistoryConfig{
			Driver:     "sqlite",
			SQLitePath: c.HistoryDBPath(),
		},
		Logging: domain.LoggingConfig{
			Level:  c.LogLevel,
			Format: c.LogFormat,
			Output: "stderr",
		},
		MCP: domain.MCPConfig{
			ServerName:    "medreport-analyzer-lite",
			ServerVersion: "v0.1.0",
		},
	}
}
