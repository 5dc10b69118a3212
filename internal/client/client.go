package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webterm/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/webterm/internal/terminal"
)

const (
	terminalPath = "/api/terminal"
	healthPath   = "/health"
	userAgent    = "webtermctl/1.0"
)

// Options configures a Client. Zero fields take the defaults.
type Options struct {
	// Timeout bounds each control request. Streams are not bounded.
	Timeout time.Duration

	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	Logger *zap.Logger
}

// DefaultOptions returns the options used by NewClient when none are given.
func DefaultOptions() Options {
	return Options{
		Timeout:      10 * time.Second,
		RetryMax:     3,
		RetryWaitMin: 200 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
	}
}

// Client talks to a webterm server's control and stream endpoints.
type Client struct {
	resty   *resty.Client
	timeout time.Duration
	logger  *zap.Logger
}

// APIError is a non-2xx answer from the server. It unwraps to
// terminal.ErrNotFound or terminal.ErrInvalidArgument where the status
// code says so.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return terminal.ErrNotFound
	case http.StatusBadRequest:
		return terminal.ErrInvalidArgument
	default:
		return nil
	}
}

type controlRequest struct {
	Action  string `json:"action"`
	Session string `json:"session,omitempty"`
	Data    string `json:"data,omitempty"`
	Cols    *int   `json:"cols,omitempty"`
	Rows    *int   `json:"rows,omitempty"`
}

type controlResponse struct {
	OK        bool                   `json:"ok"`
	SessionID string                 `json:"sessionId,omitempty"`
	Sessions  []terminal.SessionInfo `json:"sessions,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Health is the body of GET /health.
type Health struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Sessions      struct {
		Total int `json:"total"`
		Alive int `json:"alive"`
	} `json:"sessions"`
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts Options) *Client {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	} else if opts.RetryMax == 0 {
		opts.RetryMax = def.RetryMax
	}
	if opts.RetryWaitMin <= 0 {
		opts.RetryWaitMin = def.RetryWaitMin
	}
	if opts.RetryWaitMax <= 0 {
		opts.RetryWaitMax = def.RetryWaitMax
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.RetryWaitMin = opts.RetryWaitMin
	retryClient.RetryWaitMax = opts.RetryWaitMax
	retryClient.CheckRetry = retryPolicy
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = leveledLogger{opts.Logger.Sugar()}

	r := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("User-Agent", userAgent).
		SetTransport(&retryablehttp.RoundTripper{Client: retryClient}).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetError(&errorBody{}).
		OnBeforeRequest(injectTrace)

	return &Client{resty: r, timeout: opts.Timeout, logger: opts.Logger}
}

// retryPolicy retries connection failures for every request but server
// errors only for GETs, so input is never delivered twice.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err == nil && resp != nil && resp.Request != nil && resp.Request.Method != http.MethodGet {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

func injectTrace(_ *resty.Client, req *resty.Request) error {
	headers := make(map[string]string, 2)
	tracing.InjectTraceContext(req.Context(), headers)
	for k, v := range headers {
		req.SetHeader(k, v)
	}
	return nil
}

// Create starts a session with the given window size and returns its id.
func (c *Client) Create(ctx context.Context, cols, rows int) (string, error) {
	resp, err := c.control(ctx, controlRequest{Action: "create", Cols: &cols, Rows: &rows})
	if err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", errors.New("create: server returned no session id")
	}
	return resp.SessionID, nil
}

// Input writes data to the session's shell.
func (c *Client) Input(ctx context.Context, sessionID, data string) error {
	_, err := c.control(ctx, controlRequest{Action: "input", Session: sessionID, Data: data})
	return err
}

// Resize changes the session's window size.
func (c *Client) Resize(ctx context.Context, sessionID string, cols, rows int) error {
	_, err := c.control(ctx, controlRequest{Action: "resize", Session: sessionID, Cols: &cols, Rows: &rows})
	return err
}

// Kill terminates and removes the session. Unknown ids are not an error.
func (c *Client) Kill(ctx context.Context, sessionID string) error {
	_, err := c.control(ctx, controlRequest{Action: "kill", Session: sessionID})
	return err
}

// List returns every session on the server.
func (c *Client) List(ctx context.Context) ([]terminal.SessionInfo, error) {
	resp, err := c.control(ctx, controlRequest{Action: "list"})
	if err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// Health fetches the server's health report.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out Health
	resp, err := c.resty.R().SetContext(ctx).SetResult(&out).Get(healthPath)
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) control(ctx context.Context, body controlRequest) (*controlResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out controlResponse
	resp, err := c.resty.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post(terminalPath)
	if err := check(resp, err); err != nil {
		c.logger.Debug("Control request failed", zap.String("action", body.Action), zap.Error(err))
		return nil, fmt.Errorf("%s: %w", body.Action, err)
	}
	return &out, nil
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	apiErr := &APIError{Status: resp.StatusCode()}
	if body, ok := resp.Error().(*errorBody); ok && body != nil {
		apiErr.Message = body.Error
	}
	return apiErr
}

// leveledLogger routes retryablehttp's logging to zap.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
