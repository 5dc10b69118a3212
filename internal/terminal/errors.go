package terminal

import "errors"

var (
	// ErrNotFound is returned for unknown session ids and for sessions
	// that are no longer alive.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidArgument is returned for out-of-range window sizes.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSpawnFailed is returned when the bridge process cannot be started.
	ErrSpawnFailed = errors.New("failed to spawn terminal")

	// ErrTransportClosed is returned by listeners that can no longer
	// deliver. The broadcaster removes them.
	ErrTransportClosed = errors.New("transport closed")
)
