package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/webterm/internal/infrastructure/logging"
)

// Main is the entry point of the bridge subprocess. args are the initial
// "<cols> <rows>". It returns the process exit code.
//
// Anything the bridge writes to stderr is shown to viewers as terminal
// output, so only errors are logged.
func Main(args []string) int {
	logger, err := logging.New(logging.Config{
		Level:       "error",
		Development: true,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		logger = logging.NewNop()
	}
	defer logger.Sync()

	size, err := parseSizeArgs(args)
	if err != nil {
		logger.Error("invalid arguments", zap.Error(err))
		return 2
	}

	b, err := New(Options{
		Size:   size,
		Logger: logger.Logger,
	})
	if err != nil {
		logger.Error("bridge setup failed", zap.Error(err))
		return 1
	}

	if err := b.Run(context.Background()); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode()
		}
		logger.Error("bridge failed", zap.Error(err))
		return 1
	}
	return 0
}

func parseSizeArgs(args []string) (Size, error) {
	if len(args) != 2 {
		return Size{}, fmt.Errorf("usage: bridge <cols> <rows>")
	}
	cols, err := strconv.Atoi(args[0])
	if err != nil {
		return Size{}, fmt.Errorf("cols: %w", err)
	}
	rows, err := strconv.Atoi(args[1])
	if err != nil {
		return Size{}, fmt.Errorf("rows: %w", err)
	}
	s := Size{Cols: cols, Rows: rows}
	if !s.Valid() {
		return Size{}, fmt.Errorf("size %dx%d out of range", cols, rows)
	}
	return s, nil
}

// Exit runs Main and exits the process with its code.
func Exit(args []string) {
	os.Exit(Main(args))
}
