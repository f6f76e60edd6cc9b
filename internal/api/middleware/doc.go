// Package middleware provides the gin middleware of the host HTTP surface:
// CORS, per-client rate limiting and bearer token authentication.
package middleware
