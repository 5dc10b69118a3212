// Package middleware provides the HTTP middleware of the terminal host.
//
// Middleware stack includes:
//   - CORS: any origin may stream and control sessions, websocket upgrades included
//   - RateLimit: per-IP token bucket on the control endpoint
//
// Idle per-IP limiters are forgotten after ten minutes.
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	control := router.Group("/", middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
