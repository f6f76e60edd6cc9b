// Package main is the entry point for the surface host.
//
// The host renders web content offscreen and multiplexes any number of
// surfaces over one connection per client. Each surface is addressed by an
// integer handle; commands go in as JSON requests and paint, cursor,
// navigation and title events come back tagged with the handle.
//
// Transports:
//   - WebSocket at /ws (JSON text frames, paint payloads as binary frames)
//   - gRPC on a separate listener (Call plus a server-streamed Events feed)
//   - REST for /health, /surfaces/stats and Prometheus /metrics
//
// Configuration:
//   - Defaults, then the file named by SURFACE_CONFIG_FILE (.toml or .yaml)
//   - Environment variables (12-factor)
//   - CLI flags (override everything)
//
// Usage:
//
//	# Software rendering, no browser needed
//	./server -port 8000 -root ./pages
//
//	# Real Chrome, development logging
//	./server -provider chrome -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
