// Package main is the entry point of the webterm server.
//
// The server hosts login shells on pseudo-terminals and serves them to
// browsers: output streams over server-sent events or a websocket, input
// and resizes arrive on a JSON control endpoint.
//
// The same binary is the pty bridge. Each session re-executes it as
//
//	server bridge <cols> <rows>
//
// which runs the shell on a pty and relays between the pty and its stdio.
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Production mode
//	./server -port 8000 -workdir /srv/scratch
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: end every session, then shut down gracefully
package main
