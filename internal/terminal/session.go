package terminal

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/webterm/internal/bridge"
)

// State is a session's lifecycle state.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateEnded
	StateKilled
)

// String returns the state name used in logs and listings.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateEnded:
		return "ended"
	case StateKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no transition can leave the state.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateKilled
}

// Session is one shell behind a bridge process, its replay buffer and its
// viewers.
type Session struct {
	ID         string
	WorkingDir string
	CreatedAt  time.Time

	// Process management
	cmd   *exec.Cmd
	stdin io.WriteCloser

	// writeMu serializes stdin writes so a resize command is never
	// interleaved with input bytes.
	writeMu sync.Mutex

	// mu guards the fields below and orders every append+publish, so all
	// listeners observe one total order and replay snapshots never miss or
	// duplicate an event.
	mu           sync.Mutex
	state        State
	lastActivity time.Time
	cols         int
	rows         int
	buffer       *Buffer
	listeners    *Broadcaster
	done         chan struct{}
	// exited closes once the bridge process has been reaped.
	exited chan struct{}

	logger *zap.Logger
	now    func() time.Time
}

func newSession(id, workDir string, cols, rows, bufferLimit int, logger *zap.Logger, now func() time.Time) *Session {
	created := now()
	return &Session{
		ID:           id,
		WorkingDir:   workDir,
		CreatedAt:    created,
		state:        StateCreated,
		lastActivity: created,
		cols:         cols,
		rows:         rows,
		buffer:       NewBuffer(bufferLimit),
		listeners:    NewBroadcaster(),
		done:         make(chan struct{}),
		exited:       make(chan struct{}),
		logger:       logger,
		now:          now,
	}
}

// Alive reports whether the session is running.
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.state.Terminal()
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastActivity returns when output or input was last seen.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Replay returns the retained output.
func (s *Session) Replay() string {
	return s.buffer.Replay()
}

// Attach atomically snapshots the replay buffer and, if the session is
// alive, registers l for every later event. The caller emits replay and
// then Status(alive) before relaying live events. id is zero when nothing
// was registered.
func (s *Session) Attach(l Listener) (replay string, alive bool, id ListenerID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	replay = s.buffer.Replay()
	alive = !s.state.Terminal()
	if alive {
		id = s.listeners.Register(l)
	}
	return replay, alive, id
}

// Detach removes a listener registered by Attach.
func (s *Session) Detach(id ListenerID) {
	if id != 0 {
		s.listeners.Unregister(id)
	}
}

// Viewers returns the number of attached listeners.
func (s *Session) Viewers() int {
	return s.listeners.Len()
}

// Write sends raw bytes to the bridge's stdin.
func (s *Session) Write(p []byte) error {
	if !s.Alive() {
		return fmt.Errorf("%w: %s", ErrNotFound, s.ID)
	}

	s.writeMu.Lock()
	_, err := s.stdin.Write(p)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotFound, s.ID, err)
	}

	s.mu.Lock()
	s.lastActivity = s.now()
	s.mu.Unlock()
	return nil
}

// Resize validates the size and sends the inline resize command.
func (s *Session) Resize(cols, rows int) error {
	size := bridge.Size{Cols: cols, Rows: rows}
	if !size.Valid() {
		return fmt.Errorf("%w: size %dx%d outside %dx%d..%dx%d", ErrInvalidArgument,
			cols, rows, bridge.MinCols, bridge.MinRows, bridge.MaxCols, bridge.MaxRows)
	}
	if err := s.Write(bridge.EncodeResize(cols, rows)); err != nil {
		return err
	}

	s.mu.Lock()
	s.cols, s.rows = cols, rows
	s.mu.Unlock()
	return nil
}

// Info returns the diagnostic view of the session.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	info := SessionInfo{
		ID:           s.ID,
		Alive:        !s.state.Terminal(),
		State:        s.state.String(),
		WorkingDir:   s.WorkingDir,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.lastActivity,
		AgeSeconds:   int64(now.Sub(s.CreatedAt).Seconds()),
		Cols:         s.cols,
		Rows:         s.rows,
		Viewers:      s.listeners.Len(),
	}
	if s.cmd != nil && s.cmd.Process != nil {
		info.PID = s.cmd.Process.Pid
	}
	return info
}

// start moves the session to running once its bridge has been spawned.
func (s *Session) start(cmd *exec.Cmd, stdin io.WriteCloser) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cmd = cmd
	s.stdin = stdin
	if s.state == StateCreated {
		s.state = StateRunning
	}
}

// output records a chunk of bridge output and publishes it. Output that
// arrives after the session ended is dropped.
func (s *Session) output(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return
	}
	s.buffer.Append(text)
	s.lastActivity = s.now()
	s.listeners.Publish(OutputEvent(text))
}

// end enters a terminal state exactly once: it appends the end banner,
// publishes it and Status(false), then drops every listener. It returns
// false if the session had already ended.
func (s *Session) end(state State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return false
	}
	s.state = state
	s.buffer.Append(EndedBanner)
	s.listeners.Publish(OutputEvent(EndedBanner))
	s.listeners.Publish(StatusEvent(false))
	s.listeners.Clear()
	close(s.done)
	return true
}

// spawned reports whether a bridge process was started for the session.
func (s *Session) spawned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil
}

// kill ends the session and asks the bridge to terminate. It does not wait
// for the process to exit.
func (s *Session) kill() bool {
	ended := s.end(StateKilled)
	s.terminate()
	return ended
}

func (s *Session) terminate() {
	s.mu.Lock()
	cmd, stdin := s.cmd, s.stdin
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && err != os.ErrProcessDone {
			s.logger.Debug("Failed to signal bridge", zap.Error(err))
		}
	}
	if stdin != nil {
		stdin.Close()
	}
}

// SessionInfo is the public representation of a session
type SessionInfo struct {
	ID           string    `json:"id"`
	Alive        bool      `json:"alive"`
	State        string    `json:"state"`
	PID          int       `json:"pid,omitempty"`
	WorkingDir   string    `json:"workingDir"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	AgeSeconds   int64     `json:"ageSeconds"`
	Cols         int       `json:"cols"`
	Rows         int       `json:"rows"`
	Viewers      int       `json:"viewers"`
}
