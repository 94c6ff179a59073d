/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics collection for the
kernel host, tracking syscall rates and latencies, object and handle
population, blocking-wait behavior, IPC throughput, and the
introspection HTTP surface.

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Record custom metrics
	metrics.RecordObjectCreated("event")
	metrics.HandlesLive.Set(float64(arena.Live()))

	// Time syscalls
	timer := monitoring.NewTimer(metrics, "handle_close")
	// ... perform operation ...
	timer.Stop("ok")

# Metrics Endpoint

Expose metrics via the standard Prometheus endpoint:

	import "github.com/prometheus/client_golang/prometheus/promhttp"
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
