package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// DefaultPollTimeout bounds each wait on the pty and stdin so termination
// signals are noticed without I/O.
const DefaultPollTimeout = 100 * time.Millisecond

const readBufferSize = 32 * 1024

// Options configures a bridge run.
type Options struct {
	Size Size

	// Command is the shell argv. Empty means LoginCommand().
	Command []string
	Dir     string
	// Env is the shell environment. Nil means the bridge's own environment.
	Env []string

	Stdin  *os.File
	Stdout *os.File

	PollTimeout time.Duration
	Logger      *zap.Logger
}

// Bridge relays bytes between a pty-backed shell and its own stdio.
type Bridge struct {
	opts   Options
	logger *zap.Logger

	cmd   *exec.Cmd
	ptmx  *os.File
	demux Demux
	// heldSince is when the demux last started holding a partial marker.
	heldSince time.Time
}

// New validates options and fills defaults.
func New(opts Options) (*Bridge, error) {
	if !opts.Size.Valid() {
		return nil, fmt.Errorf("initial size %dx%d out of range", opts.Size.Cols, opts.Size.Rows)
	}
	if len(opts.Command) == 0 {
		opts.Command = LoginCommand()
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{opts: opts, logger: logger}, nil
}

// Run starts the shell and relays until the shell exits, a termination
// signal arrives or ctx is cancelled. When the shell exits on its own the
// returned error is the shell's *exec.ExitError, if any.
func (b *Bridge) Run(ctx context.Context) error {
	b.cmd = exec.Command(b.opts.Command[0], b.opts.Command[1:]...)
	b.cmd.Dir = b.opts.Dir
	b.cmd.Env = b.opts.Env

	ptmx, err := pty.StartWithSize(b.cmd, winsize(b.opts.Size))
	if err != nil {
		return fmt.Errorf("start shell %s: %w", b.opts.Command[0], err)
	}
	b.ptmx = ptmx
	defer ptmx.Close()

	b.logger.Debug("shell started",
		zap.Int("pid", b.cmd.Process.Pid),
		zap.Strings("command", b.opts.Command),
	)
	b.resize(b.opts.Size)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(signals)

	err = b.relay(ctx, signals)
	if errors.Is(err, errTerminated) {
		// Reap without blocking the caller on a shell that ignores the signal.
		go b.cmd.Wait()
		return nil
	}
	waitErr := b.cmd.Wait()
	if err != nil {
		return err
	}
	return waitErr
}

var errTerminated = errors.New("terminated")

func (b *Bridge) relay(ctx context.Context, signals <-chan os.Signal) error {
	ptyFd := int32(b.ptmx.Fd())
	stdinFd := int32(b.opts.Stdin.Fd())
	fds := []unix.PollFd{
		{Fd: ptyFd, Events: unix.POLLIN},
		{Fd: stdinFd, Events: unix.POLLIN},
	}
	timeout := int(b.opts.PollTimeout / time.Millisecond)
	buf := make([]byte, readBufferSize)

	for {
		select {
		case sig := <-signals:
			b.logger.Debug("forwarding signal", zap.Stringer("signal", sig))
			b.signal(sig.(syscall.Signal))
			return errTerminated
		case <-ctx.Done():
			b.signal(syscall.SIGTERM)
			return errTerminated
		default:
		}

		n, err := unix.Poll(fds, timeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			if err := b.flushHeld(); err != nil {
				return nil
			}
			continue
		}

		if fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			n, err := b.ptmx.Read(buf)
			if n > 0 {
				if _, werr := b.opts.Stdout.Write(buf[:n]); werr != nil {
					// The host is gone; nobody will read the shell's output.
					b.signal(syscall.SIGHUP)
					return errTerminated
				}
			}
			if err != nil {
				// EIO on Linux once the last slave fd closes: the shell exited.
				return nil
			}
		}

		if fds[1].Fd >= 0 && fds[1].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			n, err := b.opts.Stdin.Read(buf)
			if n > 0 {
				b.forward(buf[:n])
			}
			if err != nil {
				if err != io.EOF {
					b.logger.Debug("stdin read failed", zap.Error(err))
				}
				// Host closed our stdin: hang up the shell and drain its output.
				fds[1].Fd = -1
				b.signal(syscall.SIGHUP)
			}
		}

		// A busy shell keeps the poll waking up, so the idle check cannot
		// rely on timeouts alone.
		if err := b.flushHeld(); err != nil {
			return nil
		}
	}
}

// flushHeld releases a partial marker once stdin has added nothing to it for
// a poll interval.
func (b *Bridge) flushHeld() error {
	if !b.demux.Pending() || b.heldSince.IsZero() || time.Since(b.heldSince) < b.opts.PollTimeout {
		return nil
	}
	b.heldSince = time.Time{}
	if flushed := b.demux.Flush(); len(flushed) > 0 {
		if _, err := b.ptmx.Write(flushed); err != nil {
			return err
		}
	}
	return nil
}

// forward writes passthrough bytes to the pty and applies resize commands.
func (b *Bridge) forward(p []byte) {
	out, sizes := b.demux.Feed(p)
	if len(out) > 0 {
		if _, err := b.ptmx.Write(out); err != nil {
			b.logger.Debug("pty write failed", zap.Error(err))
		}
	}
	for _, s := range sizes {
		b.resize(s)
	}
	if b.demux.Pending() {
		b.heldSince = time.Now()
	} else {
		b.heldSince = time.Time{}
	}
}

func (b *Bridge) resize(s Size) {
	if err := pty.Setsize(b.ptmx, winsize(s)); err != nil {
		b.logger.Debug("resize failed", zap.Error(err))
		return
	}
	b.signal(syscall.SIGWINCH)
}

// signal delivers sig to the shell's process group; the shell is a session
// leader so its pid is the group id.
func (b *Bridge) signal(sig syscall.Signal) {
	if b.cmd == nil || b.cmd.Process == nil {
		return
	}
	pid := b.cmd.Process.Pid
	if err := syscall.Kill(-pid, sig); err != nil {
		_ = syscall.Kill(pid, sig)
	}
}

func winsize(s Size) *pty.Winsize {
	return &pty.Winsize{Cols: uint16(s.Cols), Rows: uint16(s.Rows)}
}
