/*
Package server assembles the terminal host and owns its lifecycle.

NewServer wires configuration, logging, metrics, tracing, the session
registry, the janitor and the HTTP routes. Run serves until its context is
cancelled, then stops the janitor, ends every session so open streams see
their final status, and drains the HTTP server within the shutdown
timeout.

Routes:

	GET  /                  service identity
	GET  /health            session counts and metrics snapshot
	GET  /metrics           Prometheus exposition
	GET  /api/terminal      stream (SSE) or list
	POST /api/terminal      control actions, rate limited per IP
	GET  /api/terminal/ws   websocket stream
*/
package server
