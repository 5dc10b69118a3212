/*
Package monitoring provides Prometheus metrics for the terminal host.

# Features

- HTTP request metrics (latency, status) labelled by route pattern
- Session lifecycle metrics (created, ended by reason, spawn failures)
- Byte counters for terminal input and output
- Open viewer connections per transport and dropped listeners
- Operation timers for create, input, resize and kill

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "create")
	// ... spawn ...
	timer.Stop("success")
*/
package monitoring
