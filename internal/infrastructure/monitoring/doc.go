/*
Package monitoring provides Prometheus metrics for the surface host.

# Overview

Each Metrics value owns a dedicated registry. It tracks HTTP requests,
multiplexer commands, delivered and dropped events, pool occupancy and
transport connections.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "navigate")
	// ... run the command ...
	timer.Stop(monitoring.ResultOK)
*/
package monitoring
