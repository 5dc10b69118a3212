package terminal

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Janitor defaults.
const (
	DefaultJanitorInterval = 2 * time.Minute
	DefaultIdleTimeout     = time.Hour
	DefaultMaxAge          = 4 * time.Hour
)

// JanitorConfig configures a Janitor. Zero fields take the defaults.
type JanitorConfig struct {
	Interval    time.Duration
	IdleTimeout time.Duration
	MaxAge      time.Duration
}

// Janitor periodically reclaims sessions that are dead, idle or too old.
type Janitor struct {
	registry *Registry
	config   JanitorConfig
	logger   *zap.Logger
}

// NewJanitor creates a janitor for registry.
func NewJanitor(registry *Registry, config JanitorConfig, logger *zap.Logger) *Janitor {
	if config.Interval <= 0 {
		config.Interval = DefaultJanitorInterval
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.MaxAge <= 0 {
		config.MaxAge = DefaultMaxAge
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{registry: registry, config: config, logger: logger}
}

// Run sweeps every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	j.logger.Info("Janitor started",
		zap.Duration("interval", j.config.Interval),
		zap.Duration("idle_timeout", j.config.IdleTimeout),
		zap.Duration("max_age", j.config.MaxAge),
	)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("Janitor stopped")
			return
		case <-ticker.C:
			j.Sweep(j.registry.opts.Now())
		}
	}
}

// Sweep destroys every session that has ended, has been idle longer than
// the idle timeout or is older than the maximum age, and returns their ids.
func (j *Janitor) Sweep(now time.Time) []string {
	var removed []string
	for _, s := range j.registry.snapshot() {
		reason := j.verdict(s, now)
		if reason == "" {
			continue
		}
		if j.registry.destroy(s.ID, reason) {
			removed = append(removed, s.ID)
		}
	}

	if len(removed) > 0 {
		total, alive := j.registry.Count()
		j.logger.Info("Janitor reclaimed sessions",
			zap.Strings("sessions", removed),
			zap.Int("remaining", total),
			zap.Int("alive", alive),
		)
	}
	return removed
}

func (j *Janitor) verdict(s *Session, now time.Time) string {
	switch {
	case !s.Alive():
		return ReasonDead
	case now.Sub(s.LastActivity()) > j.config.IdleTimeout:
		return ReasonIdle
	case now.Sub(s.CreatedAt) > j.config.MaxAge:
		return ReasonMaxAge
	default:
		return ""
	}
}

// Start runs the janitor on its own goroutine until ctx is done.
func (j *Janitor) Start(ctx context.Context) {
	go j.Run(ctx)
}
