// Command webtermctl drives a webterm server from the shell.
//
// Usage:
//
//	webtermctl [-server URL] [-o table|json|yaml] <command> [args]
//
// The server URL defaults to $WEBTERM_URL, then http://localhost:8000.
//
//	id=$(webtermctl create -cols 120 -rows 40)
//	webtermctl input "$id" ls -la
//	webtermctl attach "$id"
//	webtermctl -o yaml list
package main
