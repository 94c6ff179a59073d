// Package kernel groups the capability kernel core: objects, handles,
// IPC transports, tasks, waiters, and the syscall surface.
//
// Lock hierarchy (outermost first), fixed project-wide:
//
//  1. process registry lock (task.Registry)
//  2. per-process state lock (task.Process.mu)
//  3. per-process handle-table lock (task.Process.tableMu)
//  4. global handle-arena lock (handle.Arena)
//  5. per-object source locks (pipe, tracker, ring, debuglog)
//  6. per-object sink locks (wait-set mutex, port queue lock)
//
// A goroutine holding a lock at level N may only acquire locks at
// levels > N. Source locks may be held while signaling into a sink
// (a state tracker notifying a wait-set entry, a pipe signaling a
// bound port client); the reverse path always releases the sink lock
// first (wait-set AddEntry/RemoveEntry call into trackers unlocked).
//
// Reference releases that can run destructors, and handle-close side
// effects (tracker cancellation, type-specific close), execute after
// the table or arena lock that triggered them has been dropped.
package kernel
