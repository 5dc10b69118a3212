// Package terminal manages shell sessions served to browser viewers.
//
// Each Session owns one bridge subprocess (see package bridge) that runs a
// login shell on a pseudo-terminal. The registry spawns bridges, pumps
// their output into the session's replay Buffer and fans it out through a
// Broadcaster to every attached viewer.
//
// Lifecycle:
//
//	created --spawn--> running --stdout closed--> ended
//	                      |
//	                      +------kill------> killed
//
// Entering ended or killed appends "[Session ended]" to the buffer,
// publishes it, publishes Status(false) and drops every listener. A
// session never leaves a terminal state; the Janitor removes it later.
//
// Viewers join with Session.Attach, which returns the replay snapshot
// atomically with the registration so the replayed text followed by the
// live events is exactly the session's output, with nothing missed or
// repeated.
package terminal
