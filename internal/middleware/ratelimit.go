package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/medreport-analyzer/internal/domain"
)

// ClientRateLimiter keeps one token bucket per client IP. The set of tracked
// clients is bounded; the least recently seen client is forgotten first.
type ClientRateLimiter struct {
	limiters *lru.Cache[string, *rate.Limiter]
	rate     rate.Limit
	burst    int
}

// NewClientRateLimiter creates a per-client limiter allowing rps requests per
// second with the given burst, tracking at most maxClients clients.
func NewClientRateLimiter(rps float64, burst, maxClients int) (*ClientRateLimiter, error) {
	if maxClients <= 0 {
		maxClients = 10000
	}
	if burst <= 0 {
		burst = 1
	}
	cache, err := lru.New[string, *rate.Limiter](maxClients)
	if err != nil {
		return nil, err
	}
	return &ClientRateLimiter{
		limiters: cache,
		rate:     rate.Limit(rps),
		burst:    burst,
	}, nil
}

// Limiter returns the bucket for a client, creating it on first use
func (l *ClientRateLimiter) Limiter(client string) *rate.Limiter {
	if limiter, ok := l.limiters.Get(client); ok {
		return limiter
	}
	limiter := rate.NewLimiter(l.rate, l.burst)
	// a concurrent request may have created one first
	if existing, ok, _ := l.limiters.PeekOrAdd(client, limiter); ok {
		return existing
	}
	return limiter
}

// Middleware rejects requests over the client's budget with 429
func (l *ClientRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.rate <= 0 {
			c.Next()
			return
		}

		if !l.Limiter(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": domain.NewAnalysisError(
				domain.ErrRateLimit,
				"Too many requests, please retry shortly",
				"",
				c.GetString(CorrelationIDKey),
			)})
			return
		}
		c.Next()
	}
}

// CORS allows browser clients from the configured origins. An empty list
// allows any origin.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case len(allowed) == 0:
			c.Header("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Correlation-ID")
		c.Header("Access-Control-Max-Age", "43200")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
