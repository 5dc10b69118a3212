package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webterm/internal/bridge"
	"github.com/GriffinCanCode/webterm/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webterm/internal/shared/id"
	"github.com/GriffinCanCode/webterm/internal/terminal"
)

const bridgeEnv = "WEBTERM_TEST_BRIDGE"

func TestMain(m *testing.M) {
	if os.Getenv(bridgeEnv) == "1" {
		bridge.Exit(os.Args[1:])
	}
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type testServer struct {
	*httptest.Server
	registry *terminal.Registry
	metrics  *monitoring.Metrics
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}

	metrics := monitoring.NewMetrics()
	registry, err := terminal.NewRegistry(terminal.Options{
		BridgeArgs: []string{},
		WorkDir:    t.TempDir(),
		Env:        append(os.Environ(), bridgeEnv+"=1", "SHELL=/bin/sh", "ENV="),
		Logger:     zap.NewNop(),
		Metrics:    metrics,
	})
	require.NoError(t, err)

	opts.Metrics = metrics
	router := gin.New()
	NewHandlers(registry, opts).Register(router)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		registry.Shutdown(ctx)
		srv.Close()
	})
	return &testServer{Server: srv, registry: registry, metrics: metrics}
}

func (ts *testServer) control(t *testing.T, body any) (int, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/api/terminal", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (ts *testServer) create(t *testing.T) string {
	t.Helper()
	status, out := ts.control(t, map[string]any{"action": "create", "cols": 80, "rows": 24})
	require.Equal(t, http.StatusOK, status, "create: %v", out)
	id, ok := out["sessionId"].(string)
	require.True(t, ok)
	return id
}

// frame is one parsed SSE item: an event or a heartbeat comment.
type frame struct {
	event     terminal.Event
	heartbeat bool
}

type sseStream struct {
	resp   *http.Response
	frames chan frame
}

func (ts *testServer) stream(t *testing.T, sessionID string) *sseStream {
	t.Helper()
	resp, err := http.Get(ts.URL + "/api/terminal?action=stream&session=" + sessionID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	t.Cleanup(func() { resp.Body.Close() })

	st := &sseStream{resp: resp, frames: make(chan frame, 1024)}
	go func() {
		defer close(st.frames)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, ": heartbeat"):
				st.frames <- frame{heartbeat: true}
			case strings.HasPrefix(line, "data: "):
				var ev terminal.Event
				if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev) == nil {
					st.frames <- frame{event: ev}
				}
			}
		}
	}()
	return st
}

// next returns the next event frame, skipping heartbeats.
func (st *sseStream) next(t *testing.T) terminal.Event {
	t.Helper()
	for {
		select {
		case f, ok := <-st.frames:
			require.True(t, ok, "stream closed")
			if !f.heartbeat {
				return f.event
			}
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for a frame")
		}
	}
}

// waitOutput reads events until the accumulated output contains want.
func (st *sseStream) waitOutput(t *testing.T, want string) string {
	t.Helper()
	var text strings.Builder
	for !strings.Contains(text.String(), want) {
		ev := st.next(t)
		if ev.Type == terminal.EventOutput {
			text.WriteString(ev.Text)
		}
	}
	return text.String()
}

func (st *sseStream) waitClosed(t *testing.T) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case _, ok := <-st.frames:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close")
		}
	}
}

func TestRootAndHealth(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Contains(t, body, "sessions")

	resp2, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestStreamHeaders(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.create(t)

	st := ts.stream(t, id)
	assert.Equal(t, "text/event-stream", st.resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache, no-transform", st.resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no", st.resp.Header.Get("X-Accel-Buffering"))
}

func TestStreamUnknownSession(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/api/terminal?session=sess_missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "not found")
}

func TestGetUnknownAction(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/api/terminal?action=dance")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateInputStream(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.create(t)
	assert.True(t, strings.HasPrefix(id, "sess_"))

	st := ts.stream(t, id)
	first := st.next(t)
	if first.Type == terminal.EventOutput {
		first = st.next(t)
	}
	require.Equal(t, terminal.EventStatus, first.Type)
	assert.True(t, first.IsAlive())

	status, out := ts.control(t, map[string]any{"action": "input", "session": id, "data": "echo sse-$((6*7))\n"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, out["ok"])

	st.waitOutput(t, "sse-42")
}

func TestReplayOnReconnect(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.create(t)

	first := ts.stream(t, id)
	first.next(t)
	ts.control(t, map[string]any{"action": "input", "session": id, "data": "echo replay-$((1+1))\n"})
	first.waitOutput(t, "replay-2")

	second := ts.stream(t, id)
	ev := second.next(t)
	require.Equal(t, terminal.EventOutput, ev.Type)
	assert.Contains(t, ev.Text, "replay-2")

	status := second.next(t)
	assert.Equal(t, terminal.EventStatus, status.Type)
	assert.True(t, status.IsAlive())
}

func TestResizeValidation(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.create(t)

	status, out := ts.control(t, map[string]any{"action": "resize", "session": id, "cols": 1, "rows": 24})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, out["error"])

	status, _ = ts.control(t, map[string]any{"action": "resize", "session": id, "cols": 80.5, "rows": 24})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = ts.control(t, map[string]any{"action": "resize", "session": id, "cols": 80})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = ts.control(t, map[string]any{"action": "resize", "session": id, "cols": 120, "rows": 40})
	assert.Equal(t, http.StatusOK, status)

	s, err := ts.registry.Live(id)
	require.NoError(t, err)
	info := s.Info()
	assert.Equal(t, 120, info.Cols)
	assert.Equal(t, 40, info.Rows)

	st := ts.stream(t, id)
	st.next(t)
	ts.control(t, map[string]any{"action": "input", "session": id, "data": "stty size\n"})
	st.waitOutput(t, "40 120")
}

func TestControlNotFound(t *testing.T) {
	ts := newTestServer(t, Options{})

	status, _ := ts.control(t, map[string]any{"action": "input", "session": "sess_missing", "data": "ls\n"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = ts.control(t, map[string]any{"action": "resize", "session": "sess_missing", "cols": 80, "rows": 24})
	assert.Equal(t, http.StatusNotFound, status)

	// Well formed but never issued.
	unknown := id.NewSessionID().String()
	status, _ = ts.control(t, map[string]any{"action": "input", "session": unknown, "data": "ls\n"})
	assert.Equal(t, http.StatusNotFound, status)

	// Kill is idempotent.
	status, out := ts.control(t, map[string]any{"action": "kill", "session": "sess_missing"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, out["ok"])
}

func TestMalformedSessionIDs(t *testing.T) {
	ts := newTestServer(t, Options{})
	live := ts.create(t)

	for _, bad := range []string{"", "sess_", live + "x", "req_" + strings.TrimPrefix(live, "sess_")} {
		status, out := ts.control(t, map[string]any{"action": "input", "session": bad, "data": "ls\n"})
		assert.Equal(t, http.StatusNotFound, status, "input %q", bad)
		assert.Contains(t, out["error"], "malformed id", "input %q", bad)

		status, _ = ts.control(t, map[string]any{"action": "resize", "session": bad, "cols": 80, "rows": 24})
		assert.Equal(t, http.StatusNotFound, status, "resize %q", bad)

		resp, err := http.Get(ts.URL + "/api/terminal?session=" + url.QueryEscape(bad))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "stream %q", bad)
	}
}

func TestJanitorSweepThenStreamIs404(t *testing.T) {
	ts := newTestServer(t, Options{})
	sessionID := ts.create(t)

	janitor := terminal.NewJanitor(ts.registry, terminal.JanitorConfig{}, zap.NewNop())
	removed := janitor.Sweep(time.Now().Add(2 * terminal.DefaultIdleTimeout))
	assert.Equal(t, []string{sessionID}, removed)

	resp, err := http.Get(ts.URL + "/api/terminal?action=stream&session=" + sessionID)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	status, _ := ts.control(t, map[string]any{"action": "input", "session": sessionID, "data": "ls\n"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestControlBadRequests(t *testing.T) {
	ts := newTestServer(t, Options{})

	status, _ := ts.control(t, map[string]any{"action": "explode"})
	assert.Equal(t, http.StatusBadRequest, status)

	resp, err := http.Post(ts.URL+"/api/terminal", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	status, _ = ts.control(t, map[string]any{"action": "create", "cols": 600, "rows": 24})
	assert.Equal(t, http.StatusBadRequest, status)
	total, _ := ts.registry.Count()
	assert.Zero(t, total)
}

func TestKillEndsStream(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.create(t)

	st := ts.stream(t, id)
	st.next(t)

	status, _ := ts.control(t, map[string]any{"action": "kill", "session": id})
	require.Equal(t, http.StatusOK, status)

	text := st.waitOutput(t, "[Session ended]")
	assert.Contains(t, text, terminal.EndedBanner)
	ev := st.next(t)
	assert.Equal(t, terminal.EventStatus, ev.Type)
	assert.False(t, ev.IsAlive())
	st.waitClosed(t)

	status, _ = ts.control(t, map[string]any{"action": "input", "session": id, "data": "ls\n"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestShellExitEndsStream(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.create(t)

	st := ts.stream(t, id)
	st.next(t)
	ts.control(t, map[string]any{"action": "input", "session": id, "data": "exit\n"})

	st.waitOutput(t, "[Session ended]")
	ev := st.next(t)
	assert.False(t, ev.IsAlive())
	st.waitClosed(t)

	// The ended session still replays with status false.
	again := ts.stream(t, id)
	replay := again.next(t)
	assert.Contains(t, replay.Text, "[Session ended]")
	assert.False(t, again.next(t).IsAlive())
	again.waitClosed(t)
}

func TestList(t *testing.T) {
	ts := newTestServer(t, Options{})
	a := ts.create(t)
	b := ts.create(t)

	resp, err := http.Get(ts.URL + "/api/terminal?action=list")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Sessions []terminal.SessionInfo `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Sessions, 2)
	ids := []string{body.Sessions[0].ID, body.Sessions[1].ID}
	assert.ElementsMatch(t, []string{a, b}, ids)

	status, out := ts.control(t, map[string]any{"action": "list"})
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, out["sessions"], 2)
}

func TestHeartbeat(t *testing.T) {
	ts := newTestServer(t, Options{Heartbeat: 50 * time.Millisecond})
	id := ts.create(t)

	st := ts.stream(t, id)
	deadline := time.After(5 * time.Second)
	for {
		select {
		case f := <-st.frames:
			if f.heartbeat {
				return
			}
		case <-deadline:
			t.Fatal("no heartbeat")
		}
	}
}

func TestStreamConnectionsMetric(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.create(t)

	st := ts.stream(t, id)
	st.next(t)
	require.Eventually(t, func() bool { return ts.metrics.Snapshot().ActiveConnections == 1 },
		2*time.Second, 10*time.Millisecond)

	st.resp.Body.Close()
	require.Eventually(t, func() bool { return ts.metrics.Snapshot().ActiveConnections == 0 },
		5*time.Second, 10*time.Millisecond)
}

func TestViewerOverflow(t *testing.T) {
	v := newViewer(2)

	require.NoError(t, v.listen(terminal.OutputEvent("a")))
	require.NoError(t, v.listen(terminal.OutputEvent("b")))
	assert.ErrorIs(t, v.listen(terminal.OutputEvent("c")), terminal.ErrTransportClosed)

	select {
	case <-v.overflow:
	default:
		t.Fatal("overflow not signalled")
	}

	// A second overflow must not panic on the closed channel.
	assert.ErrorIs(t, v.listen(terminal.OutputEvent("d")), terminal.ErrTransportClosed)

	v.close()
	<-v.events
	assert.ErrorIs(t, v.listen(terminal.OutputEvent("e")), terminal.ErrTransportClosed)
}

func TestEncodeFrame(t *testing.T) {
	frame, err := encodeFrame(terminal.OutputEvent("line1\r\nline2"))
	require.NoError(t, err)

	s := string(frame)
	assert.True(t, strings.HasPrefix(s, "data: "))
	assert.True(t, strings.HasSuffix(s, "\n\n"))
	assert.Equal(t, 2, strings.Count(s, "\n"), "payload must stay on one line")

	var ev terminal.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(s, "data: "))), &ev))
	assert.Equal(t, "line1\r\nline2", ev.Text)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(terminal.ErrNotFound))
	assert.Equal(t, http.StatusBadRequest, statusFor(terminal.ErrInvalidArgument))
	assert.Equal(t, http.StatusInternalServerError, statusFor(terminal.ErrSpawnFailed))
}

func TestSpawnFailureIs500(t *testing.T) {
	registry, err := terminal.NewRegistry(terminal.Options{BridgePath: "/nonexistent/bridge"})
	require.NoError(t, err)
	router := gin.New()
	NewHandlers(registry, Options{}).Register(router)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/terminal", strings.NewReader(`{"action":"create"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}
