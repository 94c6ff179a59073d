// Package waiter implements the mechanisms for observing signal state:
// the per-wait observers behind handle_wait_one/handle_wait_many, the
// persistent wait-set dispatcher, and the edge-triggered I/O port with
// its signal-binding client.
//
// All four support cancellation: closing or transferring a handle that
// a goroutine is blocked on wakes it synchronously with a result
// distinct from satisfaction and from timeout.
package waiter
