package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	handlers "github.com/GriffinCanCode/webterm/internal/api/http"
	"github.com/GriffinCanCode/webterm/internal/api/middleware"
	"github.com/GriffinCanCode/webterm/internal/infrastructure/config"
	"github.com/GriffinCanCode/webterm/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webterm/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webterm/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/webterm/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/webterm/internal/terminal"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	registry *terminal.Registry
	janitor  *terminal.Janitor
	tracer   *tracing.Tracer
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger := logging.FromConfig(cfg.Logging.Level, cfg.Logging.Development)

	logger.Info("Initializing webterm server",
		zap.String("port", cfg.Server.Port),
		zap.String("workdir", cfg.Terminal.WorkDir),
		zap.Int("buffer_limit", cfg.Terminal.BufferLimit),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()
	tracer := tracing.New("webterm", logger.Logger)

	registry, err := terminal.NewRegistry(terminal.Options{
		BridgePath:  cfg.Terminal.BridgePath,
		WorkDir:     cfg.Terminal.WorkDir,
		BufferLimit: cfg.Terminal.BufferLimit,
		Logger:      logger.Named("terminal"),
		Metrics:     metrics,
		Breaker:     resilience.ForSpawn(logger.Named("breaker")),
	})
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to create session registry: %w", err)
	}

	janitor := terminal.NewJanitor(registry, terminal.JanitorConfig{
		Interval:    cfg.Terminal.JanitorInterval,
		IdleTimeout: cfg.Terminal.IdleTimeout,
		MaxAge:      cfg.Terminal.MaxAge,
	}, logger.Named("janitor"))

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	h := handlers.NewHandlers(registry, handlers.Options{
		Heartbeat: cfg.Terminal.Heartbeat,
		Logger:    logger.Named("http"),
		Metrics:   metrics,
		Tracer:    tracer,
	})

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	var control []gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		control = append(control, middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}
	h.Register(router, control...)

	logger.Info("Server initialized successfully")

	return &Server{
		router:   router,
		registry: registry,
		janitor:  janitor,
		tracer:   tracer,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}, nil
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry returns the session registry.
func (s *Server) Registry() *terminal.Registry {
	return s.registry
}

// Run serves on the configured address until ctx is done, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	// Request contexts outlive ctx so streams can deliver the final status
	// of their sessions during shutdown.
	baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	s.janitor.Start(janitorCtx)

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
		errChan <- srv.Serve(ln)
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	stopJanitor()
	return s.shutdown(srv, cancelBase)
}

// shutdown ends every session first so open streams finish with their
// final status, then drains the HTTP server. Connections still open at the
// deadline are closed and their request contexts cancelled.
func (s *Server) shutdown(srv *http.Server, cancelRequests context.CancelFunc) error {
	s.logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.registry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop sessions: %w", err))
	}
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop http server: %w", err))
		srv.Close()
	}
	cancelRequests()
	s.tracer.Close()

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("Shutdown incomplete", zap.Error(err))
		return err
	}
	s.logger.Info("Server stopped")
	s.logger.Sync()
	return nil
}
