// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/callgate/internal/call"
	"github.com/mbd888/callgate/internal/config"
	"github.com/mbd888/callgate/internal/health"
	"github.com/mbd888/callgate/internal/insight"
	"github.com/mbd888/callgate/internal/logging"
	"github.com/mbd888/callgate/internal/metrics"
	"github.com/mbd888/callgate/internal/policy"
	"github.com/mbd888/callgate/internal/ratelimit"
	"github.com/mbd888/callgate/internal/realtime"
	"github.com/mbd888/callgate/internal/recording"
	"github.com/mbd888/callgate/internal/security"
	"github.com/mbd888/callgate/internal/session"
	"github.com/mbd888/callgate/internal/speech"
	"github.com/mbd888/callgate/internal/token"
	"github.com/mbd888/callgate/internal/traces"
)

// maxRequestBody caps inbound request bodies. Webhook payloads are small;
// anything larger is not a legitimate platform callback.
const maxRequestBody = 1 << 20 // 1MB

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg       *config.Config
	policy    *policy.Policy
	catalog   *speech.Catalog
	sessions  *session.MemoryStore
	reaper    *session.Reaper
	artifacts *recording.ArtifactStore
	relay     *recording.Relay
	scorer    call.Scorer
	service   *call.Service
	callH     *call.Handler
	hub       *realtime.Hub
	checks    *health.Registry
	limiter   *ratelimit.Limiter
	router    *gin.Engine
	httpSrv   *http.Server
	logger    *slog.Logger

	shutdownTraces func(context.Context) error
	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithScorer sets a custom risk scorer (for testing)
func WithScorer(scorer call.Scorer) Option {
	return func(s *Server) {
		s.scorer = scorer
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set scorer/logger)
	for _, opt := range opts {
		opt(s)
	}

	pol, err := policy.New(policy.MinLevel)
	if err != nil {
		return nil, fmt.Errorf("init policy: %w", err)
	}
	s.policy = pol

	catalog, err := speech.Load(cfg.SpeechFile)
	if err != nil {
		return nil, fmt.Errorf("load speech prompts: %w", err)
	}
	s.catalog = catalog

	minter, err := token.NewMinter(cfg.ApplicationID, cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("init token minter: %w", err)
	}

	s.sessions = session.NewMemoryStore()
	s.reaper = session.NewReaper(s.sessions, cfg.SessionTTL, s.logger)

	s.artifacts = recording.NewArtifactStore()
	s.relay, err = recording.NewRelay(cfg.RecordingDir, minter, s.artifacts)
	if err != nil {
		return nil, fmt.Errorf("init recording relay: %w", err)
	}

	if s.scorer == nil {
		s.scorer = insight.NewClient(cfg.InsightURL, minter, cfg.InsightTimeout)
	}

	s.hub = realtime.NewHub(s.logger)

	s.service = call.NewService(
		s.sessions, s.policy, s.scorer, s.catalog, s.relay, s.artifacts,
		cfg.AppURL, s.logger,
	).WithEvents(s.hub)
	s.callH = call.NewHandler(s.service)

	s.checks = health.NewRegistry()
	s.checks.Register("sessions", func(ctx context.Context) health.Status {
		if _, err := s.sessions.Count(ctx); err != nil {
			return health.Unhealthy("sessions", err.Error())
		}
		return health.OK("sessions")
	})
	s.checks.Register("recordings", func(ctx context.Context) health.Status {
		if _, err := os.Stat(cfg.RecordingDir); err != nil {
			return health.Unhealthy("recordings", err.Error())
		}
		return health.OK("recordings")
	})

	// Set gin mode based on environment
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.healthy.Store(true)

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// Request size limit
	s.router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBody)
		c.Next()
	})

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/_/health", s.healthHandler)
	s.router.GET("/_/health/live", s.livenessHandler)
	s.router.GET("/_/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// Operator console. Rate limited; the webhook routes are not, since the
	// platform's call volume is bounded upstream and a dropped webhook loses
	// the call.
	s.limiter = ratelimit.New(ratelimit.DefaultConfig())
	console := s.router.Group("/", s.limiter.Middleware())
	console.GET("/", s.consoleHandler)
	console.POST("/level", s.setLevelHandler)
	console.GET("/api/status", s.statusHandler)
	console.GET("/download.ogg", s.downloadLatestHandler)
	console.GET("/recordings/:file", s.downloadSessionHandler)
	console.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	// Platform webhooks
	s.callH.RegisterRoutes(s.router)
}

func (s *Server) statusHandler(c *gin.Context) {
	count, err := s.sessions.Count(c.Request.Context())
	if err != nil {
		count = 0
	}
	c.JSON(http.StatusOK, gin.H{
		"number":   s.cfg.Number,
		"level":    s.policy.Level(),
		"cutoff":   s.policy.Cutoff(),
		"sessions": count,
		"feed":     s.hub.Stats(),
	})
}

func (s *Server) setLevelHandler(c *gin.Context) {
	var form struct {
		Level *int `form:"level" json:"level" binding:"required"`
	}
	if err := c.ShouldBind(&form); err != nil {
		s.renderConsole(c, http.StatusBadRequest, "Level must be a whole number between 0 and 10.")
		return
	}

	if err := s.policy.SetLevel(*form.Level); err != nil {
		s.renderConsole(c, http.StatusBadRequest, err.Error())
		return
	}

	logging.L(c.Request.Context()).Info("screening level changed", "level", *form.Level)
	s.renderConsole(c, http.StatusOK, "")
}

func (s *Server) downloadLatestHandler(c *gin.Context) {
	artifact, err := s.artifacts.Latest()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No recording available yet",
		})
		return
	}
	s.serveArtifact(c, artifact)
}

func (s *Server) downloadSessionHandler(c *gin.Context) {
	// Accept both "sess-1" and "sess-1.ogg".
	name := strings.TrimSuffix(c.Param("file"), ".ogg")
	if name == "" || name != filepath.Base(name) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid recording name",
		})
		return
	}

	artifact, err := s.artifacts.Get(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No recording for that session",
		})
		return
	}
	s.serveArtifact(c, artifact)
}

func (s *Server) serveArtifact(c *gin.Context, artifact *recording.Artifact) {
	c.Header("Content-Type", "audio/ogg")
	c.File(artifact.Path)
}

// -----------------------------------------------------------------------------
// Health handlers
// -----------------------------------------------------------------------------

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"checks":    statuses,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	shutdownTraces, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("trace exporter init failed, continuing without traces", "error", err)
	} else {
		s.shutdownTraces = shutdownTraces
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"number", s.cfg.Number,
			"cutoff", s.policy.Cutoff(),
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start session reaper
	go s.reaper.Start(runCtx)

	// Start realtime hub
	go s.hub.Run(runCtx)

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, reaper)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	s.reaper.Stop()
	s.logger.Info("session reaper stopped")

	if s.limiter != nil {
		s.limiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.shutdownTraces != nil {
		if err := s.shutdownTraces(ctx); err != nil {
			s.logger.Error("trace exporter shutdown error", "error", err)
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
