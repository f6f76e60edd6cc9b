// Package http serves the informational HTTP endpoints of the host:
//
//	GET /                service identity
//	GET /health          loop liveness and provider factory state
//	GET /surfaces/stats  registry, pool and traffic statistics
//	GET /metrics         Prometheus exposition
//
// The websocket transport is mounted next to these by the server package.
package http
