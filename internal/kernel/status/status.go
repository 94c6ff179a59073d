// Package status defines the kernel status codes surfaced by every
// syscall-shaped operation.
//
// The taxonomy follows four classes:
//   - resource exhaustion (ErrNoMemory, ErrNoResources): recoverable
//   - capability violations (ErrBadHandle, ErrWrongType, ErrAccessDenied)
//   - protocol/state races (ErrBadState): callers retry
//   - invariant violations: never surfaced as a Status; those panic
package status

import (
	"errors"
	"fmt"
)

// Status is a kernel status code. Every nonzero Status implements
// error; success is represented by a nil error, never by a Status.
type Status int32

const (
	OK Status = -iota
	ErrInternal
	ErrNotSupported
	ErrNoResources
	ErrNoMemory
	ErrInvalidArgs
	ErrOutOfRange
	ErrBufferTooSmall
	ErrBadState
	ErrNotFound
	ErrAlreadyExists
	ErrAlreadyBound
	ErrTimedOut
	ErrHandleClosed
	ErrPeerClosed
	ErrUnavailable
	ErrBadHandle
	ErrWrongType
	ErrAccessDenied
)

var names = map[Status]string{
	OK:                "ok",
	ErrInternal:       "internal",
	ErrNotSupported:   "not supported",
	ErrNoResources:    "no resources",
	ErrNoMemory:       "no memory",
	ErrInvalidArgs:    "invalid args",
	ErrOutOfRange:     "out of range",
	ErrBufferTooSmall: "buffer too small",
	ErrBadState:       "bad state",
	ErrNotFound:       "not found",
	ErrAlreadyExists:  "already exists",
	ErrAlreadyBound:   "already bound",
	ErrTimedOut:       "timed out",
	ErrHandleClosed:   "handle closed",
	ErrPeerClosed:     "peer closed",
	ErrUnavailable:    "unavailable",
	ErrBadHandle:      "bad handle",
	ErrWrongType:      "wrong type",
	ErrAccessDenied:   "access denied",
}

func (s Status) Error() string {
	if name, ok := names[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

func (s Status) String() string { return s.Error() }

// Code extracts the Status from err, or ErrInternal for foreign errors.
// A nil err maps to OK.
func Code(err error) Status {
	if err == nil {
		return OK
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return ErrInternal
}
