package http

import (
	"fmt"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webterm/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/webterm/internal/terminal"
)

// Initial window size when create omits one.
const (
	DefaultCols = 80
	DefaultRows = 24
)

// ControlRequest is the body of POST /api/terminal.
type ControlRequest struct {
	Action  string   `json:"action"`
	Session string   `json:"session,omitempty"`
	Data    string   `json:"data,omitempty"`
	Cols    *float64 `json:"cols,omitempty"`
	Rows    *float64 `json:"rows,omitempty"`
}

// Control serves POST /api/terminal.
func (h *Handlers) Control(c *gin.Context) {
	var req ControlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	span, ctx := h.tracer.StartSpan(c.Request.Context(), "terminal."+req.Action)
	defer func() {
		span.SetStatus(c.Writer.Status())
		span.Finish()
		h.tracer.Submit(span)
	}()
	span.SetTag("session_id", req.Session)
	c.Request = c.Request.WithContext(ctx)

	done := h.metrics.TrackControl(req.Action)

	var err error
	switch req.Action {
	case "create":
		err = h.create(c, req)
	case "input":
		err = h.input(c, req)
	case "resize":
		err = h.resize(c, req)
	case "kill":
		h.registry.Destroy(req.Session)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	case "list":
		c.JSON(http.StatusOK, gin.H{"ok": true, "sessions": h.registry.List()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action: " + req.Action})
		done("invalid")
		return
	}

	if err != nil {
		span.SetError(err)
		respondError(c, err)
		done("error")
		return
	}
	done("success")
}

func (h *Handlers) create(c *gin.Context, req ControlRequest) error {
	cols, rows := DefaultCols, DefaultRows
	var err error
	if req.Cols != nil {
		if cols, err = dimension("cols", *req.Cols); err != nil {
			return err
		}
	}
	if req.Rows != nil {
		if rows, err = dimension("rows", *req.Rows); err != nil {
			return err
		}
	}

	s, err := h.registry.Create(c.Request.Context(), cols, rows)
	if err != nil {
		return err
	}

	tracing.Logger(c.Request.Context(), h.logger).Info("Terminal session created",
		zap.String("session_id", s.ID),
		zap.Int("cols", cols),
		zap.Int("rows", rows),
	)
	c.JSON(http.StatusOK, gin.H{"ok": true, "sessionId": s.ID})
	return nil
}

func (h *Handlers) input(c *gin.Context, req ControlRequest) error {
	if err := checkSessionID(req.Session); err != nil {
		return err
	}
	s, err := h.registry.Live(req.Session)
	if err != nil {
		return err
	}
	if err := s.Write([]byte(req.Data)); err != nil {
		return err
	}
	h.metrics.Input(len(req.Data))
	c.JSON(http.StatusOK, gin.H{"ok": true})
	return nil
}

func (h *Handlers) resize(c *gin.Context, req ControlRequest) error {
	if req.Cols == nil || req.Rows == nil {
		return fmt.Errorf("%w: resize needs cols and rows", terminal.ErrInvalidArgument)
	}
	cols, err := dimension("cols", *req.Cols)
	if err != nil {
		return err
	}
	rows, err := dimension("rows", *req.Rows)
	if err != nil {
		return err
	}

	if err := checkSessionID(req.Session); err != nil {
		return err
	}
	s, err := h.registry.Live(req.Session)
	if err != nil {
		return err
	}
	if err := s.Resize(cols, rows); err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
	return nil
}

// dimension converts a JSON number to a window dimension. Only whole
// numbers are accepted; the range is checked by the session.
func dimension(name string, v float64) (int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s must be a whole number", terminal.ErrInvalidArgument, name)
	}
	return int(v), nil
}
