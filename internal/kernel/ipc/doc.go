// Package ipc implements the queued transports: the message pipe
// (channel) with in-band handle transfer, and its byte-stream
// siblings, the data pipe and the socket.
//
// Handle-transfer discipline for message pipes: handles enter a packet
// already removed from the sender's table (owner cleared), so a queued
// message owns its handles outright. They are re-homed into the
// receiving process only on AcceptRead, or destroyed with the packet
// if the receiving endpoint dies first. A failed write must restore
// every removed handle to the sender; that unwind lives with the
// syscall layer, which owns the sender's table lock.
package ipc
