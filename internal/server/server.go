// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/revlens/revlens/internal/ai"
	"github.com/revlens/revlens/internal/catalog"
	"github.com/revlens/revlens/internal/config"
	"github.com/revlens/revlens/internal/detect"
	"github.com/revlens/revlens/internal/earlywarn"
	"github.com/revlens/revlens/internal/evaluate"
	"github.com/revlens/revlens/internal/health"
	"github.com/revlens/revlens/internal/logging"
	"github.com/revlens/revlens/internal/metrics"
	"github.com/revlens/revlens/internal/opportunity"
	"github.com/revlens/revlens/internal/quota"
	"github.com/revlens/revlens/internal/ratelimit"
	"github.com/revlens/revlens/internal/realtime"
	"github.com/revlens/revlens/internal/revenue"
	"github.com/revlens/revlens/internal/security"
	"github.com/revlens/revlens/internal/simulate"
	"github.com/revlens/revlens/internal/traces"
	"github.com/revlens/revlens/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg *config.Config

	opportunities opportunity.Store
	catalogs      *catalog.Service
	profiles      evaluate.ProfileStore
	quotas        quota.Store
	signals       earlywarn.Store

	evalEngine  *evaluate.Engine
	calculator  *revenue.Calculator
	roller      *revenue.Roller
	quotaEngine *quota.Engine
	simulator   *simulate.Engine
	warnings    *earlywarn.Service
	sweeper     *earlywarn.Sweeper
	hub         *realtime.Hub

	completer    ai.Completer
	rateLimiter  *ratelimit.Limiter
	healthChecks *health.Registry
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run
	tracesStop   func(context.Context) error

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

// WithCompleter injects an AI completer, overriding the one built from
// config. Useful for tests.
func WithCompleter(c ai.Completer) Option {
	return func(s *Server) {
		s.completer = c
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:          cfg,
		logger:       logging.New(cfg.LogLevel, "json"),
		healthChecks: health.NewRegistry(),
	}

	// Apply options first (may set completer/logger)
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Storage: Postgres if DATABASE_URL set, otherwise in-memory
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		oppStore := opportunity.NewPostgresStore(db)
		if err := oppStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate opportunity store", "error", err)
		}
		s.opportunities = oppStore

		catStore := catalog.NewPostgresStore(db)
		if err := catStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate catalog store", "error", err)
		}
		s.catalogs = catalog.NewService(catStore)

		profStore := evaluate.NewPostgresStore(db)
		if err := profStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate profile store", "error", err)
		}
		s.profiles = profStore

		quotaStore := quota.NewPostgresStore(db)
		if err := quotaStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate quota store", "error", err)
		}
		s.quotas = quotaStore

		sigStore := earlywarn.NewPostgresStore(db)
		if err := sigStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate signal store", "error", err)
		}
		s.signals = sigStore

		s.healthChecks.Register("database", func(ctx context.Context) health.Status {
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		s.opportunities = opportunity.NewMemoryStore()
		s.catalogs = catalog.NewService(catalog.NewMemoryStore())
		s.profiles = evaluate.NewMemoryStore()
		s.quotas = quota.NewMemoryStore()
		s.signals = earlywarn.NewMemoryStore()
	}

	// Live feed for dashboards
	s.hub = realtime.NewHub(s.logger)

	// Evaluation engine, optionally with the AI-assisted detector
	engineOpts := []evaluate.Option{
		evaluate.WithProfileStore(s.profiles),
		evaluate.WithProfileListener(func(p *evaluate.RiskProfile) {
			s.hub.BroadcastRiskProfile(map[string]interface{}{
				"profileId":      p.ID,
				"opportunityId":  p.OpportunityID,
				"tenantId":       p.TenantID,
				"aggregateScore": p.AggregateScore,
				"degraded":       p.Degraded,
				"riskCount":      len(p.Risks),
			})
		}),
	}
	if s.completer == nil && cfg.AIEnabled() {
		s.completer = ai.NewResilientCompleter(ai.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel))
	}
	if s.completer != nil {
		detector := detect.NewAIDetector(s.completer, detect.WithTimeout(cfg.AICallTimeout))
		engineOpts = append(engineOpts, evaluate.WithAIDetector(detector))
		s.logger.Info("AI-assisted detection enabled", "model", cfg.OpenAIModel)
	} else {
		s.logger.Info("AI-assisted detection disabled, running rule-only")
	}
	s.evalEngine = evaluate.NewEngine(engineOpts...)

	// Money math and rollups
	s.calculator = revenue.NewCalculator(cfg.RiskImpactFactor)
	s.roller = revenue.NewRoller(s.calculator, s.opportunities, s.catalogs, s.evalEngine, cfg.EvalConcurrency)
	s.quotaEngine = quota.NewEngine(s.quotas, s.opportunities, s.catalogs, s.evalEngine, s.calculator, cfg.EvalConcurrency)
	s.simulator = simulate.NewEngine(s.opportunities, s.catalogs, s.evalEngine, s.calculator)

	// Early-warning monitor
	ewCfg := earlywarn.Config{
		StagnationThresholdDays:   float64(cfg.StagnationThresholdDays),
		ActivityDropThresholdDays: float64(cfg.ActivityDropThresholdDays),
		RiskAccelerationDelta:     cfg.RiskAccelerationDelta,
		RiskAccelerationWindow:    cfg.RiskAccelerationWindow,
	}
	s.warnings = earlywarn.NewService(ewCfg, s.opportunities, s.profiles, s.signals)
	s.warnings.SetNotifier(&hubNotifier{hub: s.hub})
	if cfg.SweepInterval > 0 {
		s.sweeper = earlywarn.NewSweeper(s.warnings, s.opportunities, cfg.SweepInterval, s.logger)
		s.healthChecks.Register("sweeper", func(ctx context.Context) health.Status {
			return health.Status{Name: "sweeper", Healthy: s.sweeper.Running()}
		})
		s.logger.Info("early-warning sweeper configured", "interval", cfg.SweepInterval)
	}

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// hubNotifier forwards recorded warning signals to the WebSocket feed.
type hubNotifier struct {
	hub *realtime.Hub
}

func (n *hubNotifier) WarningSignal(sig *earlywarn.Signal) {
	n.hub.BroadcastWarningSignal(map[string]interface{}{
		"signalId":      sig.ID,
		"opportunityId": sig.OpportunityID,
		"tenantId":      sig.TenantID,
		"kind":          string(sig.Kind),
		"severity":      string(sig.Severity),
		"triggeredAt":   sig.TriggeredAt,
		"detail":        sig.Detail,
	})
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
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

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	rlCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

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

// adminMiddleware guards mutating catalog and quota routes. When no admin
// secret is configured (demo mode) the check is a no-op.
func (s *Server) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminSecret == "" {
			c.Next()
			return
		}
		if c.GetHeader("X-Admin-Secret") != s.cfg.AdminSecret {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Admin secret required",
			})
			return
		}
		c.Next()
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")
	v1.Use(validation.IDParamMiddleware())

	oppHandler := opportunity.NewHandler(s.opportunities)
	oppHandler.RegisterRoutes(v1)
	oppHandler.RegisterProtectedRoutes(v1)

	evalHandler := evaluate.NewHandler(s.evalEngine, s.opportunities, s.catalogs, s.profiles)
	evalHandler.RegisterRoutes(v1)

	revenueHandler := revenue.NewHandler(s.roller)
	revenueHandler.RegisterRoutes(v1)

	simHandler := simulate.NewHandler(s.simulator)
	simHandler.RegisterRoutes(v1)

	warnHandler := earlywarn.NewHandler(s.warnings)
	warnHandler.RegisterRoutes(v1)

	// Live warning and profile feed
	s.router.GET("/v1/stream", gin.WrapF(s.hub.HandleWebSocket))

	// Catalog reads are open; definition edits are admin-only.
	catalogHandler := catalog.NewHandler(s.catalogs)
	catalogHandler.RegisterRoutes(v1)
	adminCatalog := v1.Group("")
	adminCatalog.Use(s.adminMiddleware())
	catalogHandler.RegisterProtectedRoutes(adminCatalog)

	// Quota performance reads are open; quota CRUD is admin-only.
	quotaHandler := quota.NewHandler(s.quotas, s.quotaEngine)
	quotaHandler.RegisterRoutes(v1)
	quotaAdmin := v1.Group("")
	quotaAdmin.Use(s.adminMiddleware())
	quotaHandler.RegisterProtectedRoutes(quotaAdmin)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.healthChecks.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
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

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Revlens",
		"description": "Risk evaluation and forecasting for sales pipelines",
		"version":     "0.1.0",
		"aiDetection": s.completer != nil,
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Tracing exporter (no-op when no OTLP endpoint configured)
	stopTraces, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.tracesStop = stopTraces
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
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Live feed hub
	go s.hub.Run(runCtx)

	// Start early-warning sweeper
	if s.sweeper != nil {
		go s.sweeper.Start(runCtx)
	}

	// DB pool gauges
	if s.db != nil {
		go metrics.CollectDBStats(runCtx, s.db, 15*time.Second)
	}

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

	// Cancel the context for all background goroutines (sweeper, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	if s.sweeper != nil {
		s.sweeper.Stop()
		s.logger.Info("early-warning sweeper stopped")
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.tracesStop != nil {
		if err := s.tracesStop(ctx); err != nil {
			s.logger.Warn("trace exporter shutdown error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
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
