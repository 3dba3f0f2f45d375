package external

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/medreport-analyzer/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ResultCache stores validated reasoning results keyed by report fingerprint
type ResultCache interface {
	Get(ctx context.Context, key string) (*domain.AnalysisResult, bool, error)
	Set(ctx context.Context, key string, result *domain.AnalysisResult, ttl time.Duration) error
}

// RedisResultCache keeps reasoning results in Redis
type RedisResultCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
	prefix     string
}

// cachedResult represents a cached analysis with metadata
type cachedResult struct {
	Data      *domain.AnalysisResult `json:"data"`
	CachedAt  time.Time              `json:"cached_at"`
	ExpiresAt time.Time              `json:"expires_at"`
}

// NewRedisResultCache creates a Redis-backed result cache
func NewRedisResultCache(config domain.CacheConfig) (*RedisResultCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := config.DefaultTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisResultCache{
		redis:      client,
		defaultTTL: ttl,
		prefix:     "medreport:analysis:",
	}, nil
}

// Get retrieves a cached result
func (c *RedisResultCache) Get(ctx context.Context, key string) (*domain.AnalysisResult, bool, error) {
	redisKey := c.prefix + key

	val, err := c.redis.Get(ctx, redisKey).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached analysis: %w", err)
	}

	var cached cachedResult
	if err := json.Unmarshal([]byte(val), &cached); err != nil || cached.Data == nil {
		c.redis.Del(ctx, redisKey)
		return nil, false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, redisKey)
		return nil, false, nil
	}

	return cached.Data, true, nil
}

// Set caches a result
func (c *RedisResultCache) Set(ctx context.Context, key string, result *domain.AnalysisResult, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	cached := cachedResult{
		Data:      result,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal cached analysis: %w", err)
	}

	return c.redis.Set(ctx, c.prefix+key, data, ttl).Err()
}

// Close closes the Redis connection
func (c *RedisResultCache) Close() error {
	return c.redis.Close()
}

// CachingProvider serves repeated reports from a ResultCache. Only successful
// outcomes are stored.
type CachingProvider struct {
	provider      ReasoningProvider
	cache         ResultCache
	ttl           time.Duration
	maxInputChars int
	logger        *logrus.Logger
}

// NewCachingProvider wraps provider with cache
func NewCachingProvider(provider ReasoningProvider, cache ResultCache, ttl time.Duration, maxInputChars int, logger *logrus.Logger) *CachingProvider {
	if logger == nil {
		logger = logrus.New()
	}
	return &CachingProvider{
		provider:      provider,
		cache:         cache,
		ttl:           ttl,
		maxInputChars: maxInputChars,
		logger:        logger,
	}
}

// Name returns the wrapped provider's name
func (p *CachingProvider) Name() string {
	return p.provider.Name()
}

// CacheKey fingerprints the provider and the text the provider would see.
func CacheKey(providerName, text string, maxInputChars int) string {
	sum := sha256.Sum256([]byte(providerName + "\x00" + Truncate(text, maxInputChars)))
	return hex.EncodeToString(sum[:])
}

// Analyze returns a cached result when available, otherwise delegates.
func (p *CachingProvider) Analyze(ctx context.Context, text string) Outcome {
	key := CacheKey(p.provider.Name(), text, p.maxInputChars)

	cached, found, err := p.cache.Get(ctx, key)
	if err != nil {
		p.logger.WithError(err).Warn("Result cache lookup failed")
	}
	if found && cached != nil {
		return Outcome{Kind: OutcomeOK, Result: cached.Clone(), Cached: true}
	}

	outcome := p.provider.Analyze(ctx, text)
	if outcome.OK() {
		if err := p.cache.Set(ctx, key, outcome.Result.Clone(), p.ttl); err != nil {
			p.logger.WithError(err).Warn("Result cache store failed")
		}
	}
	return outcome
}
