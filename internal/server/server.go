// Package server wires the guardian HTTP API together.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safewalk/guardian/internal/circuitbreaker"
	"github.com/safewalk/guardian/internal/config"
	"github.com/safewalk/guardian/internal/health"
	"github.com/safewalk/guardian/internal/idgen"
	"github.com/safewalk/guardian/internal/llm"
	"github.com/safewalk/guardian/internal/logging"
	"github.com/safewalk/guardian/internal/memory"
	"github.com/safewalk/guardian/internal/metrics"
	"github.com/safewalk/guardian/internal/ratelimit"
	"github.com/safewalk/guardian/internal/risk"
	"github.com/safewalk/guardian/internal/scenario"
	"github.com/safewalk/guardian/internal/security"
	"github.com/safewalk/guardian/internal/traces"
	"github.com/safewalk/guardian/internal/tts"
	"github.com/safewalk/guardian/internal/validation"
)

// Risk provider circuit settings.
const (
	breakerThreshold = 5
	breakerOpenFor   = 30 * time.Second
)

// Server is the guardian API server
type Server struct {
	cfg     *config.Config
	version string

	provider    risk.Provider
	assessor    *risk.Assessor
	breaker     *circuitbreaker.Breaker
	memory      *memory.Store
	speech      *tts.Client
	rateLimiter *ratelimit.Limiter
	health      *health.Registry

	router        *gin.Engine
	httpSrv       *http.Server
	logger        *slog.Logger
	limiterOpts   []ratelimit.Option
	drainDelay    time.Duration
	traceShutdown func(context.Context) error
	cancelRunCtx  context.CancelFunc
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithVersion sets the version reported by /api/docs and traces.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// WithProvider replaces the OpenAI risk provider (for testing)
func WithProvider(p risk.Provider) Option {
	return func(s *Server) {
		s.provider = p
	}
}

// WithSpeechClient replaces the ElevenLabs client (for testing)
func WithSpeechClient(c *tts.Client) Option {
	return func(s *Server) {
		s.speech = c
	}
}

// WithRateLimitClock drives the rate governor from a custom clock (for testing)
func WithRateLimitClock(now func() time.Time) Option {
	return func(s *Server) {
		s.limiterOpts = append(s.limiterOpts, ratelimit.WithClock(now))
	}
}

// WithDrainDelay sets how long Shutdown waits for load balancers to notice
// the server is no longer ready.
func WithDrainDelay(d time.Duration) Option {
	return func(s *Server) {
		s.drainDelay = d
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server: nil config")
	}

	s := &Server{
		cfg:        cfg,
		version:    "dev",
		logger:     logging.New(cfg.LogLevel, cfg.LogFormat),
		drainDelay: 5 * time.Second,
		health:     health.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.memory = memory.Open(cfg.MemoryFile, s.logger)

	if s.provider == nil {
		s.provider = llm.NewOpenAIProvider(llm.Config{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
	}
	s.breaker = circuitbreaker.New(breakerThreshold, breakerOpenFor)
	s.breaker.OnTransition(func(key string, from, to circuitbreaker.State) {
		s.logger.Warn("risk provider circuit changed",
			"provider", key,
			"from", from.String(),
			"to", to.String(),
		)
	})
	s.assessor = risk.NewAssessor(s.provider, cfg.OpenAIAPIKey, s.memory, s.logger).
		WithTimeout(cfg.ProviderTimeout).
		WithBreaker(s.breaker)

	if s.speech == nil {
		s.speech = tts.NewClient(tts.Config{
			APIKey:  cfg.ElevenLabsAPIKey,
			VoiceID: cfg.ElevenLabsVoiceID,
			BaseURL: cfg.ElevenLabsBaseURL,
		})
	}

	metrics.SetProviderConfigured(s.assessor.ProviderName(), s.assessor.ProviderConfigured())
	metrics.SetProviderConfigured("elevenlabs", s.speech.Configured())
	s.logger.Info("providers",
		"risk_provider", s.assessor.ProviderName(),
		"risk_configured", s.assessor.ProviderConfigured(),
		"speech_configured", s.speech.Configured(),
	)

	s.health.Register("memory_store", s.memory.Check)
	s.health.Register("risk_provider", s.checkRiskProvider)
	s.health.Register("speech_provider", s.speech.Check)

	s.rateLimiter = ratelimit.New(ratelimit.Config{
		MaxRequests: cfg.RateLimitMax,
		Window:      cfg.RateLimitWindow,
	}, s.limiterOpts...)

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// checkRiskProvider never fails readiness: without the provider every
// assessment is served by the heuristic.
func (s *Server) checkRiskProvider(_ context.Context) health.Status {
	detail := "fallback"
	if s.assessor.ProviderConfigured() {
		detail = "configured, circuit " + s.breaker.State(s.assessor.ProviderName()).String()
	}
	return health.Status{Name: "risk_provider", Healthy: true, Detail: detail}
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.LOr(c.Request.Context(), s.logger).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(s.cfg.CORSOrigin))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Reuse a caller's ID (from a load balancer, etc.) when it is safe to echo.
		requestID := idgen.RequestID(c.GetHeader("X-Request-ID"))

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

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
				"client", ratelimit.ClientKey(c.Request),
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
	s.router.GET("/health", health.PingHandler(time.Now))
	s.router.GET("/health/live", s.health.LiveHandler)
	s.router.GET("/health/ready", s.health.ReadyHandler)
	s.router.GET("/metrics", metrics.Handler())

	api := s.router.Group("/api")
	api.GET("/docs", s.docsHandler)
	scenario.NewHandler().RegisterRoutes(api)
	memory.NewHandler(s.memory).RegisterRoutes(api)

	// Only the POST endpoints are governed.
	limited := api.Group("", s.rateLimiter.Middleware())
	risk.NewHandler(s.assessor).RegisterRoutes(limited)
	tts.NewHandler(s.speech, s.logger, s.speech.APIKey(), s.cfg.OpenAIAPIKey).RegisterRoutes(limited)

	s.router.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "Not Found")
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the server and blocks until a signal, ctx cancellation, or a
// listener error.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	shutdownTraces, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.version, s.logger)
	if err != nil {
		// Tracing is optional; keep serving without it.
		s.logger.Warn("tracing init failed", "error", err)
	} else {
		s.traceShutdown = shutdownTraces
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
			"memory_file", s.memory.Path(),
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Mark as ready after brief delay for startup
	go func() {
		select {
		case <-time.After(100 * time.Millisecond):
			s.health.SetReady(true)
			s.logger.Info("server ready")
		case <-runCtx.Done():
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		s.stopBackground()

	// A LOW result whose write failed gets one more chance.
	if err := s.memory.Save(ctx); err != nil {
		s.logger.Warn("memory flush failed", "path", s.memory.Path(), "error", err)
	}
	s.health.SetAlive(false)
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
	s.health.SetReady(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(s.drainDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var shutdownErr error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			shutdownErr = err
		}
	}

	s.stopBackground()

	if s.traceShutdown != nil {
		if err := s.traceShutdown(ctx); err != nil {
			s.logger.Warn("trace shutdown error", "error", err)
		}
	}

	s.logger.Info("server stopped")
	return shutdownErr
}

func (s *Server) stopBackground() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}
}

// Router returns the gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Health returns the health registry (for testing and probes)
func (s *Server) Health() *health.Registry {
	return s.health
}
