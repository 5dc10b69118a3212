package http

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webterm/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/webterm/internal/terminal"
)

const (
	wsWriteWait      = 10 * time.Second
	wsMaxMessageSize = 64 * 1024
)

// WSMessage is a client message on the websocket transport.
type WSMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

// wsError is sent back when a client message fails.
type wsError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// WebSocket serves GET /api/terminal/ws: the same replay-then-live event
// stream as Stream, plus input and resize messages from the client.
func (h *Handlers) WebSocket(c *gin.Context) {
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

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already answered the request.
		h.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := tracing.Logger(c.Request.Context(), h.logger).With(zap.String("session_id", sessionID))

	v, replay, alive, detach := h.attach(s)
	defer detach()
	defer h.metrics.TrackStream("ws")()

	send := func(msg any) bool {
		payload, err := sonic.Marshal(msg)
		if err != nil {
			logger.Error("Failed to encode message", zap.Error(err))
			return false
		}
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteMessage(websocket.TextMessage, payload) == nil
	}

	if replay != "" && !send(terminal.OutputEvent(replay)) {
		return
	}
	if !send(terminal.StatusEvent(alive)) || !alive {
		h.closeWS(conn)
		return
	}

	// Only this goroutine writes; the reader hands failures back.
	failures := make(chan string, 8)
	readDone := make(chan struct{})
	go h.readWS(conn, s, failures, readDone, logger)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-readDone:
			return

		case ev := <-v.events:
			if !send(ev) {
				return
			}
			if ev.Type == terminal.EventStatus && !ev.IsAlive() {
				h.closeWS(conn)
				return
			}

		case <-v.overflow:
			logger.Warn("Viewer too slow, disconnecting", zap.String("transport", "ws"))
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "viewer too slow"),
				time.Now().Add(wsWriteWait))
			return

		case msg := <-failures:
			if !send(wsError{Type: "error", Error: msg}) {
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// readWS applies client messages to the session until the connection
// closes.
func (h *Handlers) readWS(conn *websocket.Conn, s *terminal.Session, failures chan<- string, done chan<- struct{}, logger *zap.Logger) {
	defer close(done)

	conn.SetReadLimit(wsMaxMessageSize)
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}

		if err := h.applyWS(s, payload); err != nil {
			select {
			case failures <- err.Error():
			default:
			}
		}
	}
}

func (h *Handlers) applyWS(s *terminal.Session, payload []byte) error {
	var msg WSMessage
	if err := sonic.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: invalid message: %v", terminal.ErrInvalidArgument, err)
	}

	switch msg.Type {
	case "input":
		if err := s.Write([]byte(msg.Data)); err != nil {
			return err
		}
		h.metrics.Input(len(msg.Data))
		return nil
	case "resize":
		return s.Resize(msg.Cols, msg.Rows)
	default:
		return fmt.Errorf("%w: unknown message type %q", terminal.ErrInvalidArgument, msg.Type)
	}
}

func (h *Handlers) closeWS(conn *websocket.Conn) {
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
		time.Now().Add(wsWriteWait))
}
