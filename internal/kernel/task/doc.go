// Package task implements processes and threads: the containers that
// own handles and run code against the object layer.
//
// A process is the unit of capability isolation. It owns a handle
// table keyed by opaque per-process values, an address-space ledger,
// and a futex context, and it moves through a one-way lifecycle:
// initial, running, dying, dead. Threads are goroutine-backed; the
// last thread to exit carries its process to dead.
//
// Lock order inside this package follows the kernel hierarchy
// documented in the parent package: registry lock, then process state
// lock, then process handle-table lock, then the arena. Handle
// destruction side effects always run with all three dropped.
package task
