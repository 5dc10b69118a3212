package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/webterm/internal/terminal"
)

// maxFrameSize bounds one SSE line. A full replay of escaped control
// characters can be several times the buffer limit.
const maxFrameSize = 16 << 20

// ErrStreamClosed is returned by Attach when the server closed the stream
// without reporting the session as ended.
var ErrStreamClosed = errors.New("stream closed by server")

// Handler receives each event of an attached stream in order. Returning an
// error detaches.
type Handler func(terminal.Event) error

// Attach opens the session's SSE stream and hands every event to fn: the
// replay first, then the current status, then live events. It returns nil
// once the session reports it has ended, ctx.Err() when ctx is cancelled,
// or the first error fn returns.
func (c *Client) Attach(ctx context.Context, sessionID string, fn Handler) error {
	resp, err := c.resty.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "text/event-stream").
		SetQueryParams(map[string]string{"action": "stream", "session": sessionID}).
		Get(terminalPath)
	if err != nil {
		return err
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode()}
		raw, _ := io.ReadAll(io.LimitReader(body, 64<<10))
		var eb errorBody
		if sonic.Unmarshal(raw, &eb) == nil {
			apiErr.Message = eb.Error
		}
		return fmt.Errorf("attach: %w", apiErr)
	}

	err = readEvents(body, func(ev terminal.Event) error {
		if err := fn(ev); err != nil {
			return err
		}
		if ev.Type == terminal.EventStatus && !ev.IsAlive() {
			return errEnded
		}
		return nil
	})
	switch {
	case errors.Is(err, errEnded):
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return err
	}
}

var errEnded = errors.New("session ended")

// readEvents parses "data: <json>" frames from an SSE body. Comment lines
// such as heartbeats are skipped.
func readEvents(r io.Reader, fn Handler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), maxFrameSize)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")

		var ev terminal.Event
		if err := sonic.UnmarshalString(payload, &ev); err != nil {
			return fmt.Errorf("decode frame: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return ErrStreamClosed
}
