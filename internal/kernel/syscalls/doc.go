// Package syscalls is the dispatch surface of the object layer: every
// operation a process can perform enters through a System method that
// takes the calling process as its first argument.
//
// Each call follows the same gate: resolve the opaque handle value in
// the caller's table (re-checking ownership), verify the rights the
// operation needs, then narrow to the dispatcher flavor it expects.
// The three failures are distinct: ErrBadHandle, ErrAccessDenied,
// ErrWrongType.
//
// Blocking calls register observers under the caller's locks but park
// with all of them released; handle destruction side effects likewise
// run after the triggering lock is dropped.
package syscalls
