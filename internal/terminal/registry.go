package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/webterm/internal/bridge"
	"github.com/GriffinCanCode/webterm/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webterm/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/webterm/internal/shared/id"
)

const readChunkSize = 32 * 1024

// End reasons recorded in logs and metrics.
const (
	ReasonExited   = "exited"
	ReasonKilled   = "killed"
	ReasonDead     = "dead"
	ReasonIdle     = "idle"
	ReasonMaxAge   = "max_age"
	ReasonShutdown = "shutdown"
)

// Options configures a Registry.
type Options struct {
	// BridgePath is the bridge executable. Empty means the running binary.
	BridgePath string
	// BridgeArgs precede "<cols> <rows>" on the bridge command line.
	// Defaults to ["bridge"], the server's bridge subcommand.
	BridgeArgs []string
	// WorkDir is the shell's working directory. Empty means $HOME.
	WorkDir string
	// Env is the base environment passed to bridges. Nil means os.Environ().
	Env []string

	BufferLimit int

	Logger  *zap.Logger
	Metrics *monitoring.Metrics
	Breaker *resilience.Breaker

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// Registry owns every terminal session of the process.
type Registry struct {
	opts    Options
	logger  *zap.Logger
	metrics *monitoring.Metrics
	breaker *resilience.Breaker

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.BridgePath == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate bridge executable: %w", err)
		}
		opts.BridgePath = exe
	}
	if opts.BridgeArgs == nil {
		opts.BridgeArgs = []string{"bridge"}
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.Getenv("HOME")
		if opts.WorkDir == "" {
			opts.WorkDir = "/tmp"
		}
	}
	if opts.Env == nil {
		opts.Env = os.Environ()
	}
	if opts.BufferLimit <= 0 {
		opts.BufferLimit = DefaultBufferLimit
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Breaker == nil {
		opts.Breaker = resilience.ForSpawn(opts.Logger)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Registry{
		opts:     opts,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		breaker:  opts.Breaker,
		sessions: make(map[string]*Session),
	}, nil
}

// Create spawns a bridge with the given initial size and registers the
// new session.
func (r *Registry) Create(ctx context.Context, cols, rows int) (*Session, error) {
	timer := monitoring.NewTimer(r.metrics, "create")

	size := bridge.Size{Cols: cols, Rows: rows}
	if !size.Valid() {
		timer.Stop("invalid")
		return nil, fmt.Errorf("%w: size %dx%d", ErrInvalidArgument, cols, rows)
	}
	if err := ctx.Err(); err != nil {
		timer.Stop("cancelled")
		return nil, err
	}

	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		timer.Stop("closed")
		return nil, fmt.Errorf("%w: registry is shut down", ErrSpawnFailed)
	}

	sessionID := string(id.NewSessionID())
	logger := r.logger.With(zap.String("session_id", sessionID))
	s := newSession(sessionID, r.opts.WorkDir, cols, rows, r.opts.BufferLimit, logger, r.opts.Now)
	s.listeners.SetOnDrop(func(lid ListenerID, err error) {
		if r.metrics != nil {
			r.metrics.IncListenerDrops()
		}
		logger.Debug("Viewer dropped", zap.Uint64("listener", uint64(lid)), zap.Error(err))
	})

	args := append(append([]string(nil), r.opts.BridgeArgs...), strconv.Itoa(cols), strconv.Itoa(rows))
	cmd := exec.Command(r.opts.BridgePath, args...)
	cmd.Dir = r.opts.WorkDir
	cmd.Env = bridge.Environment(r.opts.Env, os.Getenv("HOME"))

	stdin, stdout, stderr, err := pipes(cmd)
	if err == nil {
		err = r.breaker.Execute(cmd.Start)
	}
	if err != nil {
		closeAll(stdin, stdout, stderr)
		timer.Stop("error")
		if r.metrics != nil {
			r.metrics.IncSpawnFailures()
		}
		logger.Error("Failed to spawn bridge", zap.String("bridge", r.opts.BridgePath), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	s.start(cmd, stdin)

	r.mu.Lock()
	r.sessions[sessionID] = s
	count := len(r.sessions)
	r.mu.Unlock()

	go r.supervise(s, cmd, stdout, stderr)

	if r.metrics != nil {
		r.metrics.SessionCreated()
		r.metrics.SetSessionsActive(count)
	}
	timer.Stop("success")
	logger.Info("Session created",
		zap.Int("pid", cmd.Process.Pid),
		zap.Int("cols", cols),
		zap.Int("rows", rows),
		zap.String("dir", r.opts.WorkDir),
	)
	return s, nil
}

func pipes(cmd *exec.Cmd) (io.WriteCloser, io.ReadCloser, io.ReadCloser, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return stdin, nil, nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return stdin, stdout, nil, err
	}
	return stdin, stdout, stderr, nil
}

func closeAll(closers ...io.Closer) {
	for _, c := range closers {
		if c != nil {
			c.Close()
		}
	}
}

// supervise pumps the bridge's stdout and stderr into the session and
// reaps the process. Closing stdout ends the session.
func (r *Registry) supervise(s *Session, cmd *exec.Cmd, stdout, stderr io.Reader) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Stderr carries shell-side errors; viewers see them as output.
		r.pump(s, stderr)
	}()

	r.pump(s, stdout)
	if s.end(StateEnded) {
		r.recordEnd(s, ReasonExited)
	}

	wg.Wait()
	err := cmd.Wait()
	close(s.exited)

	fields := []zap.Field{zap.Int("pid", cmd.Process.Pid)}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			fields = append(fields, zap.Error(err))
		} else {
			fields = append(fields, zap.Int("exit_code", exitErr.ExitCode()))
		}
	}
	s.logger.Debug("Bridge reaped", fields...)
}

// pump reads until EOF, handing whole UTF-8 sequences to the session so a
// multi-byte character split across reads is not mangled.
func (r *Registry) pump(s *Session, src io.Reader) {
	buf := make([]byte, readChunkSize)
	var carry []byte
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if r.metrics != nil {
				r.metrics.AddOutputBytes(n)
			}
			data := append(carry, buf[:n]...)
			cut := completeUTF8(data)
			if cut > 0 {
				s.output(string(data[:cut]))
			}
			carry = append([]byte(nil), data[cut:]...)
		}
		if err != nil {
			if len(carry) > 0 {
				s.output(string(carry))
			}
			if err != io.EOF && !errors.Is(err, os.ErrClosed) {
				s.logger.Debug("Bridge stream closed", zap.Error(err))
			}
			return
		}
	}
}

// completeUTF8 returns the length of the longest prefix of p that does not
// end inside an incomplete multi-byte sequence.
func completeUTF8(p []byte) int {
	// A UTF-8 sequence is at most 4 bytes, so only the tail needs checking.
	for i := 1; i <= utf8.UTFMax && i <= len(p); i++ {
		b := p[len(p)-i]
		if !utf8.RuneStart(b) {
			continue
		}
		if !utf8.FullRune(p[len(p)-i:]) {
			return len(p) - i
		}
		return len(p)
	}
	return len(p)
}

// Get returns the session with the given id.
func (r *Registry) Get(sessionID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return s, nil
}

// Live returns the session only if it is alive.
func (r *Registry) Live(sessionID string) (*Session, error) {
	s, err := r.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if !s.Alive() {
		return nil, fmt.Errorf("%w: %s has ended", ErrNotFound, sessionID)
	}
	return s, nil
}

// List returns diagnostics for every session, oldest first.
func (r *Registry) List() []SessionInfo {
	sessions := r.snapshot()
	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].CreatedAt.Before(infos[j].CreatedAt)
		}
		return infos[i].ID < infos[j].ID
	})
	return infos
}

// Count returns the number of sessions and how many are alive.
func (r *Registry) Count() (total, alive int) {
	for _, s := range r.snapshot() {
		total++
		if s.Alive() {
			alive++
		}
	}
	return total, alive
}

func (r *Registry) snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Destroy terminates a session and removes it. It does not wait for the
// process to exit and reports whether a session was removed.
func (r *Registry) Destroy(sessionID string) bool {
	return r.destroy(sessionID, ReasonKilled)
}

func (r *Registry) destroy(sessionID, reason string) bool {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return false
	}
	if s.kill() {
		r.recordEnd(s, reason)
	}
	if r.metrics != nil {
		r.metrics.SetSessionsActive(count)
	}
	s.logger.Info("Session removed", zap.String("reason", reason))
	return true
}

func (r *Registry) recordEnd(s *Session, reason string) {
	if r.metrics != nil {
		r.metrics.SessionEnded(reason)
	}
	s.logger.Info("Session ended", zap.String("reason", reason))
}

// Shutdown terminates every session and refuses new ones. It waits until
// every bridge process has been reaped or ctx is done.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	sessions := r.snapshot()
	for _, s := range sessions {
		r.destroy(s.ID, ReasonShutdown)
	}
	for _, s := range sessions {
		if !s.spawned() {
			continue
		}
		select {
		case <-s.exited:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
