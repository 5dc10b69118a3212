package http

import (
	"github.com/GriffinCanCode/webterm/internal/infrastructure/monitoring"
)

// HandlerMetrics wraps the optional metrics collector for handlers
type HandlerMetrics struct {
	metrics *monitoring.Metrics
}

// NewHandlerMetrics creates a metrics wrapper. A nil collector is allowed.
func NewHandlerMetrics(metrics *monitoring.Metrics) *HandlerMetrics {
	return &HandlerMetrics{metrics: metrics}
}

// TrackControl times a control action; call the result with its outcome.
func (hm *HandlerMetrics) TrackControl(action string) func(status string) {
	timer := monitoring.NewTimer(hm.metrics, "control."+action)
	return timer.Stop
}

// TrackStream counts a connected viewer; call the result on disconnect.
func (hm *HandlerMetrics) TrackStream(transport string) func() {
	if hm.metrics == nil {
		return func() {}
	}
	hm.metrics.IncStreamConnections(transport)
	return func() { hm.metrics.DecStreamConnections(transport) }
}

// Input counts bytes written to a session.
func (hm *HandlerMetrics) Input(n int) {
	if hm.metrics != nil {
		hm.metrics.AddInputBytes(n)
	}
}

// Snapshot returns the collector's snapshot, if there is a collector.
func (hm *HandlerMetrics) Snapshot() (monitoring.MetricsSnapshot, bool) {
	if hm.metrics == nil {
		return monitoring.MetricsSnapshot{}, false
	}
	return hm.metrics.Snapshot(), true
}
