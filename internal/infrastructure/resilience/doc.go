/*
Package resilience provides the circuit breaker that guards bridge spawns.

# Overview

Creating a terminal session forks a bridge process. When forks keep failing
(bridge binary missing, process table or memory exhausted) every create
request would otherwise pay for another failed fork. The breaker turns a run
of spawn failures into fast rejections until a probe succeeds.

# Usage

	breaker := resilience.ForSpawn(logger)

	err := breaker.Execute(func() error {
		return cmd.Start()
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		// rejected without forking
	}

# States

The breaker transitions between states based on consecutive failures:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
