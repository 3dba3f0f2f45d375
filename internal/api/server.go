package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/medreport-analyzer/internal/domain"
	"github.com/medreport-analyzer/internal/history"
	"github.com/medreport-analyzer/internal/logging"
	"github.com/medreport-analyzer/internal/metrics"
	"github.com/medreport-analyzer/internal/middleware"
	"github.com/medreport-analyzer/internal/service"
)

// Version is reported by the health endpoint; overridden at build time.
var Version = "dev"

// Dependencies are the collaborators the HTTP API serves.
type Dependencies struct {
	Analyzer *service.ReportAnalyzer
	Intake   *service.DocumentIntake
	History  history.Store // nil disables the history routes
	Metrics  *metrics.Metrics
	Logger   *logrus.Logger
}

// Server represents the HTTP server
type Server struct {
	config   *domain.Config
	router   *gin.Engine
	server   *http.Server
	analyzer *service.ReportAnalyzer
	intake   *service.DocumentIntake
	history  history.Store
	metrics  *metrics.Metrics
	logger   *logrus.Logger
}

// NewServer creates a new HTTP server instance
func NewServer(cfg *domain.Config, deps Dependencies) (*Server, error) {
	if deps.Analyzer == nil {
		return nil, fmt.Errorf("report analyzer is required")
	}
	if deps.Intake == nil {
		deps.Intake = service.NewDocumentIntake(deps.Logger,
			service.WithMaxTextBytes(4*maxUploadBytes(cfg.Server)))
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	limiter, err := middleware.NewClientRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst, 10000)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	router := gin.New()
	router.MaxMultipartMemory = maxUploadBytes(cfg.Server)

	router.Use(gin.CustomRecovery(recoveryHandler(deps.Logger)))
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))
	router.Use(deps.Metrics.GinMiddleware())
	if cfg.Server.WriteTimeout > 0 {
		router.Use(middleware.RequestDeadline(cfg.Server.WriteTimeout))
	}

	s := &Server{
		config:   cfg,
		router:   router,
		analyzer: deps.Analyzer,
		intake:   deps.Intake,
		history:  deps.History,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}

	s.setupRoutes(limiter)

	return s, nil
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	cfg := s.config.Server
	addr := net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port))

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.WithField("addr", addr).Info("HTTP API listening")

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes(limiter *middleware.ClientRateLimiter) {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/reference-ranges", s.handleReferenceRanges)

		analyze := v1.Group("", limiter.Middleware())
		analyze.POST("/analyze", s.handleAnalyze)
		analyze.POST("/reports", s.handleUpload)

		v1.GET("/analyses", s.handleListAnalyses)
		v1.GET("/analyses/:id", s.handleGetAnalysis)
		v1.DELETE("/analyses/:id", s.handleDeleteAnalysis)
	}
}

func maxUploadBytes(cfg domain.ServerConfig) int64 {
	if cfg.MaxUploadMB <= 0 {
		return service.DefaultMaxUploadBytes
	}
	return int64(cfg.MaxUploadMB) * 1024 * 1024
}

// recoveryHandler logs panics and answers with the standard error body
func recoveryHandler(logger *logrus.Logger) gin.RecoveryFunc {
	return func(c *gin.Context, recovered any) {
		logger.WithFields(logrus.Fields{
			"correlation_id": c.GetString(middleware.CorrelationIDKey),
			"path":           c.Request.URL.Path,
			"panic":          fmt.Sprint(recovered),
		}).Error("Request handler panicked")
		respondError(c, http.StatusInternalServerError,
			domain.NewAnalysisError(domain.ErrInternalServer, "Internal server error", "", ""))
	}
}

// respondError writes err as JSON, stamping the request's correlation id
func respondError(c *gin.Context, status int, err *domain.AnalysisError) {
	err.RequestID = c.GetString(middleware.CorrelationIDKey)
	c.AbortWithStatusJSON(status, gin.H{"error": err})
}

// statusForCode maps error codes onto HTTP statuses
func statusForCode(code string) int {
	switch code {
	case domain.ErrInvalidInput:
		return http.StatusBadRequest
	case domain.ErrUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case domain.ErrFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case domain.ErrExtraction:
		return http.StatusUnprocessableEntity
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrRateLimit:
		return http.StatusTooManyRequests
	case domain.ErrStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondWithError converts any error into the standard error body
func respondWithError(c *gin.Context, err error) {
	var ae *domain.AnalysisError
	if errors.As(err, &ae) {
		copied := *ae
		respondError(c, statusForCode(copied.Code), &copied)
		return
	}
	respondError(c, http.StatusInternalServerError,
		domain.NewAnalysisError(domain.ErrInternalServer, "Internal server error", logging.SanitizeError(err), ""))
}

func isMaxBytesError(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large")
}
