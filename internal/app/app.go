// Package app assembles the analyzer, its reasoning provider chain and the
// history store from configuration. Every entry point builds through here.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/medreport-analyzer/internal/cache"
	"github.com/medreport-analyzer/internal/database"
	"github.com/medreport-analyzer/internal/domain"
	"github.com/medreport-analyzer/internal/history"
	"github.com/medreport-analyzer/internal/logging"
	"github.com/medreport-analyzer/internal/metrics"
	"github.com/medreport-analyzer/internal/service"
	"github.com/medreport-analyzer/pkg/external"
)

// App holds the wired components
type App struct {
	Config   *domain.Config
	Logger   *logrus.Logger
	Metrics  *metrics.Metrics
	Analyzer *service.ReportAnalyzer
	Intake   *service.DocumentIntake
	History  history.Store // nil when the history driver is "none"

	closers []func() error
}

// Option adjusts how New wires components
type Option func(*options)

type options struct {
	skipHistory bool
}

// WithoutHistory skips opening the history store
func WithoutHistory() Option {
	return func(o *options) { o.skipHistory = true }
}

// New wires every component described by cfg. Close releases them.
func New(ctx context.Context, cfg *domain.Config, logger *logrus.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = logging.Discard()
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
		Intake:  service.NewDocumentIntake(logger, service.WithMaxTextBytes(4*maxUploadBytes(cfg.Server))),
	}

	provider, err := a.buildProvider(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	analyzerOpts := []service.Option{
		service.WithLogger(logger),
		service.WithRecorder(a.Metrics),
		service.WithMinExternalChars(cfg.Analysis.MinExternalChars),
		service.WithExternalTimeout(cfg.Analysis.ExternalTimeout),
	}
	if provider != nil {
		analyzerOpts = append(analyzerOpts, service.WithProvider(provider))
	}
	a.Analyzer = service.NewReportAnalyzer(analyzerOpts...)

	if !o.skipHistory {
		store, err := a.openHistory(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.History = store
	}

	logger.WithFields(logrus.Fields{
		"provider":       a.Analyzer.ProviderName(),
		"cache_backend":  cfg.Cache.Backend,
		"history_driver": cfg.History.Driver,
	}).Info("Application components initialized")

	return a, nil
}

// maxUploadBytes converts the configured upload ceiling. Extracted text may
// grow to four times that size.
func maxUploadBytes(cfg domain.ServerConfig) int64 {
	if cfg.MaxUploadMB <= 0 {
		return service.DefaultMaxUploadBytes
	}
	return int64(cfg.MaxUploadMB) * 1024 * 1024
}

// Close releases resources in reverse order of acquisition
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// buildProvider returns the provider chain: client, circuit breaker, then
// result cache. It returns nil when the external path is disabled.
func (a *App) buildProvider(ctx context.Context) (external.ReasoningProvider, error) {
	cfg := a.Config.Reasoning
	if !cfg.Enabled() {
		a.Logger.Info("No reasoning provider configured, using heuristic analysis only")
		return nil, nil
	}

	var provider external.ReasoningProvider
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		provider = external.NewOpenAIClient(external.OpenAIConfig{
			BaseURL:       cfg.BaseURL,
			APIKey:        cfg.APIKey,
			Model:         cfg.Model,
			MaxTokens:     cfg.MaxTokens,
			MaxInputChars: a.Config.Analysis.MaxInputChars,
			Timeout:       cfg.Timeout,
			RateLimit:     cfg.RateLimit,
		})
	case "gemini":
		client, err := external.NewGeminiClient(ctx, external.GeminiConfig{
			APIKey:        cfg.APIKey,
			Model:         cfg.Model,
			MaxInputChars: a.Config.Analysis.MaxInputChars,
		})
		if err != nil {
			return nil, fmt.Errorf("creating gemini client: %w", err)
		}
		provider = client
	default:
		return nil, fmt.Errorf("unknown reasoning provider: %s", cfg.Provider)
	}

	provider = external.NewResilientProvider(provider, external.CircuitBreakerConfig{
		MaxRequests:  cfg.Breaker.MaxRequests,
		Interval:     cfg.Breaker.Interval,
		Timeout:      cfg.Breaker.Timeout,
		MinRequests:  cfg.Breaker.MinRequests,
		FailureRatio: cfg.Breaker.FailureRatio,
	}, a.Logger)

	resultCache, err := a.buildCache()
	if err != nil {
		return nil, err
	}
	if resultCache != nil {
		provider = external.NewCachingProvider(provider, resultCache, a.Config.Cache.DefaultTTL,
			a.Config.Analysis.MaxInputChars, a.Logger)
	}

	return provider, nil
}

func (a *App) buildCache() (external.ResultCache, error) {
	cfg := a.Config.Cache
	switch strings.ToLower(cfg.Backend) {
	case "", "none":
		return nil, nil
	case "memory":
		memCache, err := cache.NewMemoryCache(cfg.MaxItems, cfg.DefaultTTL)
		if err != nil {
			return nil, fmt.Errorf("creating memory cache: %w", err)
		}
		return memCache, nil
	case "redis":
		redisCache, err := external.NewRedisResultCache(cfg)
		if err != nil {
			return nil, fmt.Errorf("creating redis cache: %w", err)
		}
		a.closers = append(a.closers, redisCache.Close)
		return redisCache, nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}

func (a *App) openHistory(ctx context.Context) (history.Store, error) {
	cfg := a.Config.History
	switch strings.ToLower(cfg.Driver) {
	case "", "none":
		return nil, nil
	case "sqlite":
		store, err := history.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite history: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case "postgres":
		if err := Migrate(ctx, cfg, a.Logger, MigrateUp); err != nil {
			return nil, err
		}

		db, err := database.NewConnection(ctx, database.DefaultConfig(cfg.DatabaseURL), a.Logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to history database: %w", err)
		}
		a.closers = append(a.closers, func() error { db.Close(); return nil })

		store, err := history.NewPostgresStore(db.SQL())
		if err != nil {
			return nil, fmt.Errorf("opening postgres history: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown history driver: %s", cfg.Driver)
	}
}

// MigrateDirection selects a schema migration
type MigrateDirection string

const (
	MigrateUp   MigrateDirection = "up"
	MigrateDown MigrateDirection = "down"
)

// Migrate applies or rolls back the Postgres history schema
func Migrate(ctx context.Context, cfg domain.HistoryConfig, logger *logrus.Logger, direction MigrateDirection) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database URL is required for migrations")
	}

	runner, err := database.NewMigrationRunner(cfg.DatabaseURL, cfg.MigrationsPath, logger)
	if err != nil {
		return err
	}
	defer runner.Close()

	switch direction {
	case MigrateUp:
		return runner.Up(ctx)
	case MigrateDown:
		return runner.Down(ctx)
	default:
		return fmt.Errorf("unknown migration direction: %s", direction)
	}
}

// MigrationVersion reports the applied history schema version
func MigrationVersion(cfg domain.HistoryConfig, logger *logrus.Logger) (uint, bool, error) {
	runner, err := database.NewMigrationRunner(cfg.DatabaseURL, cfg.MigrationsPath, logger)
	if err != nil {
		return 0, false, err
	}
	defer runner.Close()
	return runner.Version()
}
