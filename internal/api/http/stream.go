package http

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webterm/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/webterm/internal/terminal"
)

var heartbeatFrame = []byte(": heartbeat\n\n")

// viewer queues one connection's events between the session's publisher
// and the connection's writer. Delivery never blocks the publisher: a full
// queue fails the delivery, the broadcaster drops the viewer and the
// connection ends.
type viewer struct {
	events   chan terminal.Event
	overflow chan struct{}
	once     sync.Once
	closed   atomic.Bool
}

func newViewer(size int) *viewer {
	return &viewer{
		events:   make(chan terminal.Event, size),
		overflow: make(chan struct{}),
	}
}

func (v *viewer) listen(ev terminal.Event) error {
	if v.closed.Load() {
		return terminal.ErrTransportClosed
	}
	select {
	case v.events <- ev:
		return nil
	default:
		v.once.Do(func() { close(v.overflow) })
		return fmt.Errorf("%w: viewer queue full", terminal.ErrTransportClosed)
	}
}

func (v *viewer) close() {
	v.closed.Store(true)
}

// attach registers a viewer with the session. The returned detach must be
// called when the connection ends.
func (h *Handlers) attach(s *terminal.Session) (v *viewer, replay string, alive bool, detach func()) {
	v = newViewer(h.queueSize)
	replay, alive, id := s.Attach(v.listen)
	return v, replay, alive, func() {
		v.close()
		s.Detach(id)
	}
}

// encodeFrame renders an event as one SSE data frame.
func encodeFrame(ev terminal.Event) ([]byte, error) {
	payload, err := sonic.Marshal(ev)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	return append(frame, '\n', '\n'), nil
}

// Stream serves a session's output as server-sent events: the replay, the
// current status, then live events until the session ends or the client
// goes away.
func (h *Handlers) Stream(c *gin.Context) {
	sessionID := c.Query("session")
	err := checkSessionID(sessionID)
	var s *terminal.Session
	if err == nil {
		s, err = h.registry.Get(sessionID)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	logger := tracing.Logger(c.Request.Context(), h.logger).With(zap.String("session_id", sessionID))

	v, replay, alive, detach := h.attach(s)
	defer detach()
	defer h.metrics.TrackStream("sse")()

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache, no-transform")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	send := func(ev terminal.Event) bool {
		frame, err := encodeFrame(ev)
		if err != nil {
			logger.Error("Failed to encode event", zap.Error(err))
			return false
		}
		if _, err := c.Writer.Write(frame); err != nil {
			return false
		}
		c.Writer.Flush()
		return true
	}

	if replay != "" && !send(terminal.OutputEvent(replay)) {
		return
	}
	if !send(terminal.StatusEvent(alive)) || !alive {
		return
	}

	logger.Debug("Viewer attached", zap.String("transport", "sse"), zap.Int("replay_chars", len(replay)))

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("Viewer disconnected", zap.String("transport", "sse"))
			return

		case ev := <-v.events:
			if !send(ev) {
				return
			}
			if ev.Type == terminal.EventStatus && !ev.IsAlive() {
				return
			}

		case <-v.overflow:
			// Deliver what was queued before the drop, then end.
			for {
				select {
				case ev := <-v.events:
					if !send(ev) {
						return
					}
				default:
					logger.Warn("Viewer too slow, disconnecting", zap.String("transport", "sse"))
					return
				}
			}

		case <-ticker.C:
			if _, err := c.Writer.Write(heartbeatFrame); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}
