// Package server wires the kernel object layer to its introspection
// surface:
//   - configuration from the environment
//   - structured logging (production or development)
//   - the handle arena, process registry, and syscall facade
//   - HTTP routing with Gin (health, process and object inspection,
//     Prometheus metrics)
//   - WebSocket streaming of the kernel debug log
//   - graceful shutdown on signal
package server
