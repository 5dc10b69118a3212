package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webterm/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webterm/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/webterm/internal/shared/id"
	"github.com/GriffinCanCode/webterm/internal/terminal"
)

// Version is reported by the root endpoint.
const Version = "0.3.0"

// Defaults for stream connections.
const (
	DefaultHeartbeat = 15 * time.Second
	DefaultQueueSize = 256
)

// Options configures the terminal handlers.
type Options struct {
	// Heartbeat is the idle keepalive interval of stream connections.
	Heartbeat time.Duration
	// QueueSize bounds the events buffered per viewer before it is dropped.
	QueueSize int

	Logger  *zap.Logger
	Metrics *monitoring.Metrics
	Tracer  *tracing.Tracer
}

// Handlers contains the terminal HTTP handlers
type Handlers struct {
	registry  *terminal.Registry
	logger    *zap.Logger
	metrics   *HandlerMetrics
	tracer    *tracing.Tracer
	heartbeat time.Duration
	queueSize int
	upgrader  websocket.Upgrader
	startTime time.Time
}

// NewHandlers creates a new handler set
func NewHandlers(registry *terminal.Registry, opts Options) *Handlers {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Tracer == nil {
		opts.Tracer = tracing.New("webterm", opts.Logger)
	}

	return &Handlers{
		registry:  registry,
		logger:    opts.Logger,
		metrics:   NewHandlerMetrics(opts.Metrics),
		tracer:    opts.Tracer,
		heartbeat: opts.Heartbeat,
		queueSize: opts.QueueSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 32 * 1024,
			// No authentication: any page may attach, like the SSE endpoint.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		startTime: time.Now(),
	}
}

// Register mounts the terminal routes on router. control wraps only the
// control endpoint; streams are long-lived and never limited.
func (h *Handlers) Register(router gin.IRouter, control ...gin.HandlerFunc) {
	router.GET("/", h.Root)
	router.GET("/health", h.Health)

	router.GET("/api/terminal", h.Terminal)
	router.GET("/api/terminal/ws", h.WebSocket)
	router.POST("/api/terminal", append(control, h.Control)...)
}

// Root reports the service identity
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "webterm",
		"version": Version,
	})
}

// Health reports session counts and the metrics snapshot
func (h *Handlers) Health(c *gin.Context) {
	total, alive := h.registry.Count()
	body := gin.H{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"sessions": gin.H{
			"total": total,
			"alive": alive,
		},
	}
	if snap, ok := h.metrics.Snapshot(); ok {
		body["metrics"] = snap
	}
	c.JSON(http.StatusOK, body)
}

// Terminal serves GET /api/terminal: action=stream (default) or list.
func (h *Handlers) Terminal(c *gin.Context) {
	switch action := c.DefaultQuery("action", "stream"); action {
	case "stream":
		h.Stream(c)
	case "list":
		c.JSON(http.StatusOK, gin.H{"sessions": h.registry.List()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action: " + action})
	}
}

// checkSessionID rejects ids the registry could never have issued.
func checkSessionID(sessionID string) error {
	if !id.IsSessionID(sessionID) {
		return fmt.Errorf("%w: malformed id %q", terminal.ErrNotFound, sessionID)
	}
	return nil
}

// statusFor maps terminal errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, terminal.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, terminal.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.Error(err)
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
