package task

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jixiang52002/magenta/internal/kernel/object"
	"github.com/jixiang52002/magenta/internal/kernel/status"
)

// FutexContext is the per-process futex table. Futexes are keyed by
// the address of their userspace word; waiters park until a wake on
// the same word, a timeout, or process death.
type FutexContext struct {
	mu       sync.Mutex
	parked   map[*int32][]*object.WaitEvent
	draining bool
}

func newFutexContext() *FutexContext {
	return &FutexContext{parked: make(map[*int32][]*object.WaitEvent)}
}

// Wait blocks the caller until a wake on addr, provided the word still
// holds expected at registration time. The value check and the
// enqueue happen under one lock so a wake between check and park
// cannot be lost.
func (fc *FutexContext) Wait(addr *int32, expected int32, timeout time.Duration) error {
	fc.mu.Lock()
	if fc.draining {
		fc.mu.Unlock()
		return status.ErrBadState
	}
	if atomic.LoadInt32(addr) != expected {
		fc.mu.Unlock()
		return status.ErrBadState
	}
	ev := object.NewWaitEvent()
	fc.parked[addr] = append(fc.parked[addr], ev)
	fc.mu.Unlock()

	result, _ := ev.Wait(timeout)
	if result == object.ResultTimedOut {
		fc.abandon(addr, ev)
		return status.ErrTimedOut
	}
	return result.Status()
}

// Wake releases up to count waiters parked on addr, oldest first.
// Returns how many were released.
func (fc *FutexContext) Wake(addr *int32, count int) int {
	if count <= 0 {
		return 0
	}
	fc.mu.Lock()
	queue := fc.parked[addr]
	n := count
	if n > len(queue) {
		n = len(queue)
	}
	woken := queue[:n]
	rest := queue[n:]
	if len(rest) == 0 {
		delete(fc.parked, addr)
	} else {
		fc.parked[addr] = rest
	}
	fc.mu.Unlock()

	released := 0
	for _, ev := range woken {
		if ev.Signal(object.ResultSatisfied, 0) {
			released++
		}
	}
	return released
}

// Requeue wakes up to wakeCount waiters on addr and moves up to
// requeueCount of the remainder to the queue for requeueAddr.
func (fc *FutexContext) Requeue(addr *int32, wakeCount int, requeueAddr *int32, requeueCount int) (int, error) {
	if addr == requeueAddr {
		return 0, status.ErrInvalidArgs
	}
	released := fc.Wake(addr, wakeCount)

	fc.mu.Lock()
	queue := fc.parked[addr]
	n := requeueCount
	if n > len(queue) {
		n = len(queue)
	}
	moved := queue[:n]
	rest := queue[n:]
	if len(rest) == 0 {
		delete(fc.parked, addr)
	} else {
		fc.parked[addr] = rest
	}
	if len(moved) > 0 {
		fc.parked[requeueAddr] = append(fc.parked[requeueAddr], moved...)
	}
	fc.mu.Unlock()
	return released, nil
}

// WakeAll releases every parked waiter with a cancellation result and
// rejects new waits. Runs once, when the owning process starts dying.
func (fc *FutexContext) WakeAll() {
	fc.mu.Lock()
	if fc.draining {
		fc.mu.Unlock()
		return
	}
	fc.draining = true
	all := fc.parked
	fc.parked = nil
	fc.mu.Unlock()

	for _, queue := range all {
		for _, ev := range queue {
			ev.Signal(object.ResultCancelled, 0)
		}
	}
}

// abandon detaches a timed-out event so a later wake does not burn a
// wake slot on it.
func (fc *FutexContext) abandon(addr *int32, ev *object.WaitEvent) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	queue := fc.parked[addr]
	for i, e := range queue {
		if e == ev {
			queue = append(queue[:i], queue[i+1:]...)
			break
		}
	}
	if len(queue) == 0 {
		delete(fc.parked, addr)
	} else {
		fc.parked[addr] = queue
	}
}
