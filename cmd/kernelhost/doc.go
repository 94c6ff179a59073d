// Package main is the entry point for the kernel host.
//
// The host runs the object layer in-process (handle arena, process
// registry, syscall facade) and serves an introspection surface over
// HTTP and WebSocket.
//
// The server provides:
//   - REST API for process and object inspection
//   - Prometheus metrics
//   - WebSocket streaming of the kernel debug log
//   - Rate limiting and CORS
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	./kernelhost -port 8000
//
//	# Development mode (colored logs, debug level)
//	LOG_DEV=true LOG_LEVEL=debug ./kernelhost
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
