package object

import (
	"sync/atomic"
	"time"

	"github.com/jixiang52002/magenta/internal/kernel/status"
)

// WaitResult classifies how a blocked wait completed.
type WaitResult int

const (
	// ResultSatisfied: a watched signal became satisfied.
	ResultSatisfied WaitResult = iota
	// ResultUnsatisfiable: no watched signal can ever be satisfied.
	ResultUnsatisfiable
	// ResultCancelled: the waited-on handle was closed or transferred.
	ResultCancelled
	// ResultTimedOut: the timeout elapsed first.
	ResultTimedOut
)

// Status maps a WaitResult to the syscall-visible status code.
func (r WaitResult) Status() error {
	switch r {
	case ResultSatisfied:
		return nil
	case ResultUnsatisfiable:
		return status.ErrBadState
	case ResultCancelled:
		return status.ErrHandleClosed
	default:
		return status.ErrTimedOut
	}
}

// HasContext reports whether a result carries the signaling observer's
// context value (the triggering index for wait_many).
func (r WaitResult) HasContext() bool {
	return r == ResultSatisfied || r == ResultUnsatisfiable || r == ResultCancelled
}

// WaitEvent is the one-shot wake primitive shared by all observers of
// a single wait call. Waited on from one goroutine; signaled from many.
// Only the first Signal wins; its result and context are what Wait
// reports.
type WaitEvent struct {
	signaled atomic.Bool
	result   WaitResult
	context  uint64
	done     chan struct{}
}

// NewWaitEvent returns an unsignaled event.
func NewWaitEvent() *WaitEvent {
	return &WaitEvent{done: make(chan struct{})}
}

// Signal completes the event with result and context. Returns true if
// this call won the race and a waiter will observe these values.
func (e *WaitEvent) Signal(result WaitResult, context uint64) bool {
	if !e.signaled.CompareAndSwap(false, true) {
		return false
	}
	e.result = result
	e.context = context
	close(e.done)
	return true
}

// Wait parks the calling goroutine until signaled or until timeout
// elapses. A negative timeout waits forever; zero polls. The context
// value is meaningful only when the result HasContext.
func (e *WaitEvent) Wait(timeout time.Duration) (WaitResult, uint64) {
	if timeout < 0 {
		<-e.done
		return e.result, e.context
	}
	if timeout == 0 {
		select {
		case <-e.done:
			return e.result, e.context
		default:
			return ResultTimedOut, 0
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-e.done:
		return e.result, e.context
	case <-timer.C:
		// A racing Signal may have fired between the timer and here;
		// prefer it so cancellation is never reported as timeout.
		select {
		case <-e.done:
			return e.result, e.context
		default:
			return ResultTimedOut, 0
		}
	}
}
