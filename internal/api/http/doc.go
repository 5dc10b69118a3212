// Package http exposes terminal sessions over HTTP.
//
// Routes:
//
//	GET  /api/terminal?action=stream&session=<id>   server-sent events
//	GET  /api/terminal?action=list                  session diagnostics
//	POST /api/terminal                              control actions
//	GET  /api/terminal/ws?session=<id>              websocket stream
//	GET  /health
//
// Stream frames are "data: <json>\n\n" where the JSON is an event:
//
//	{"type":"output","text":"..."}
//	{"type":"status","alive":true}
//
// A new viewer first receives the session's replay as a single output
// frame (omitted when empty), then its status, then live events. Idle
// connections get a ": heartbeat" comment every 15 seconds. The stream
// closes after a status frame with alive false.
//
// Control bodies are {"action","session","data","cols","rows"} with action
// one of create, input, resize, kill or list. Unknown and ended sessions
// answer 404, out-of-range sizes and malformed bodies 400.
package http
