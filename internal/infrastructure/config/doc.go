// Package config provides 12-factor configuration for the terminal host.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags in cmd/server override the port and log mode.
//
// Configuration Sections:
//   - Server: HTTP listen address and shutdown grace period
//   - Terminal: bridge binary, working directory, buffer cap, timers
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting of the control endpoint
//
// Environment Variables:
//   - PORT, HOST, SHUTDOWN_TIMEOUT
//   - TERMINAL_BRIDGE_PATH, TERMINAL_WORKDIR, TERMINAL_BUFFER_LIMIT
//   - TERMINAL_HEARTBEAT, TERMINAL_JANITOR_INTERVAL, TERMINAL_IDLE_TIMEOUT, TERMINAL_MAX_AGE
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
