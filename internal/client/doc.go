// Package client is a Go client for a webterm server.
//
// Control actions are POSTed to /api/terminal through resty over a
// retrying transport. Connection failures are retried for every request;
// server errors only for GETs, so input is never sent twice. Attach reads
// the session's SSE stream until the session ends.
//
// Trace headers from the request context are forwarded, so a span started
// by the caller continues on the server.
package client
