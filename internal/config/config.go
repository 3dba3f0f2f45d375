package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/medreport-analyzer/internal/domain"
	"github.com/spf13/viper"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v      *viper.Viper
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	return NewManagerWithFile("")
}

// NewManagerWithFile creates a configuration manager that reads an explicit
// config file instead of searching the default locations.
func NewManagerWithFile(path string) (*Manager, error) {
	m := &Manager{v: viper.New()}
	if err := m.loadConfig(path); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig(path string) error {
	v := m.v

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/medreport/")
	}

	v.SetEnvPrefix("MEDREPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional; defaults and env vars cover everything
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &domain.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	applyCredentialFallbacks(&cfg.Reasoning)

	m.config = cfg
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.max_upload_mb", 10)
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 10)
	v.SetDefault("server.cors_origins", []string{})

	// Analysis defaults
	v.SetDefault("analysis.min_external_chars", 50)
	v.SetDefault("analysis.max_input_chars", 12000)
	v.SetDefault("analysis.external_timeout", "45s")

	// Reasoning service defaults
	v.SetDefault("reasoning.provider", "openai")
	v.SetDefault("reasoning.api_key", "")
	v.SetDefault("reasoning.base_url", "https://api.openai.com/v1")
	v.SetDefault("reasoning.model", "gpt-4o-mini")
	v.SetDefault("reasoning.max_tokens", 1500)
	v.SetDefault("reasoning.timeout", "40s")
	v.SetDefault("reasoning.rate_limit", 2)
	v.SetDefault("reasoning.breaker.max_requests", 3)
	v.SetDefault("reasoning.breaker.interval", "60s")
	v.SetDefault("reasoning.breaker.timeout", "30s")
	v.SetDefault("reasoning.breaker.min_requests", 3)
	v.SetDefault("reasoning.breaker.failure_ratio", 0.6)

	// Cache defaults
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_url", "redis://localhost:6379")
	v.SetDefault("cache.default_ttl", "24h")
	v.SetDefault("cache.max_items", 1000)
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")

	// History defaults
	v.SetDefault("history.driver", "sqlite")
	v.SetDefault("history.sqlite_path", "./data/history.db")
	v.SetDefault("history.database_url", "")
	v.SetDefault("history.migrations_path", "./migrations")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// MCP defaults
	v.SetDefault("mcp.server_name", "medreport-analyzer")
	v.SetDefault("mcp.server_version", "v0.1.0")
}

// applyCredentialFallbacks picks up the vendor's conventional key variable
// when no key was configured explicitly.
func applyCredentialFallbacks(cfg *domain.ReasoningConfig) {
	if cfg.APIKey != "" {
		return
	}
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	case "gemini":
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetReasoningConfig returns reasoning service configuration
func (m *Manager) GetReasoningConfig() *domain.ReasoningConfig {
	return &m.config.Reasoning
}

// GetHistoryConfig returns history storage configuration
func (m *Manager) GetHistoryConfig() *domain.HistoryConfig {
	return &m.config.History
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	return Validate(m.config)
}

// Validate checks a configuration regardless of where it was loaded from.
func Validate(config *domain.Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d MB", config.Server.MaxUploadMB)
	}

	if config.Analysis.MaxInputChars <= 0 {
		return fmt.Errorf("analysis max_input_chars must be positive")
	}
	if config.Analysis.MinExternalChars < 0 {
		return fmt.Errorf("analysis min_external_chars cannot be negative")
	}

	switch strings.ToLower(config.Reasoning.Provider) {
	case "openai", "gemini", "none", "":
	default:
		return fmt.Errorf("unknown reasoning provider: %s", config.Reasoning.Provider)
	}
	if config.Reasoning.Provider == "openai" && config.Reasoning.BaseURL == "" {
		return fmt.Errorf("reasoning base URL is required for the openai provider")
	}

	switch strings.ToLower(config.Cache.Backend) {
	case "memory", "none", "":
	case "redis":
		if config.Cache.RedisURL == "" {
			return fmt.Errorf("Redis URL is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("unknown cache backend: %s", config.Cache.Backend)
	}

	switch strings.ToLower(config.History.Driver) {
	case "none", "":
	case "sqlite":
		if config.History.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for the sqlite history driver")
		}
	case "postgres":
		if config.History.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for the postgres history driver")
		}
	default:
		return fmt.Errorf("unknown history driver: %s", config.History.Driver)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
