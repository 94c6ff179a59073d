package syscalls

import (
	"time"

	"github.com/jixiang52002/magenta/internal/kernel/handle"
	"github.com/jixiang52002/magenta/internal/kernel/object"
	"github.com/jixiang52002/magenta/internal/kernel/status"
	"github.com/jixiang52002/magenta/internal/kernel/task"
	"github.com/jixiang52002/magenta/internal/kernel/waiter"
)

// blockedWait wraps a park on ev with the wait gauges.
func (s *System) blockedWait(ev *object.WaitEvent, timeout time.Duration) (object.WaitResult, uint64) {
	if s.metrics != nil {
		s.metrics.WaitersBlocked.Inc()
		start := time.Now()
		defer func() {
			s.metrics.WaitersBlocked.Dec()
			s.metrics.WaitDuration.Observe(time.Since(start).Seconds())
		}()
	}
	return ev.Wait(timeout)
}

// HandleWaitOne blocks until any watched signal on v's object is
// satisfied, none can ever be, the handle is closed, or the timeout
// elapses. The final signal state is reported in every case.
func (s *System) HandleWaitOne(p *task.Process, v handle.Value, watching object.Signals, timeoutNs int64) (state object.SignalsState, err error) {
	defer func(start time.Time) { s.record("handle_wait_one", start, err) }(time.Now())

	ev := object.NewWaitEvent()
	var obs waiter.StateObserver
	// Registration is atomic with the lookup: a close racing this wait
	// either loses and cancels the observer, or wins and fails the
	// lookup.
	err = p.WithHandleRights(v, object.RightRead, func(h *handle.Handle) error {
		return obs.Begin(ev, h, watching, 0)
	})
	if err != nil {
		return object.SignalsState{}, err
	}
	result, _ := s.blockedWait(ev, timeoutDuration(timeoutNs))
	state = obs.End()
	return state, result.Status()
}

// HandleWaitMany blocks until any watched signal fires on any of the
// handles. It reports the final state of every slot and, when a
// specific slot completed the wait, that slot's index; otherwise the
// index is -1.
func (s *System) HandleWaitMany(p *task.Process, values []handle.Value, watching []object.Signals, timeoutNs int64) (states []object.SignalsState, index int, err error) {
	defer func(start time.Time) { s.record("handle_wait_many", start, err) }(time.Now())

	if len(values) != len(watching) {
		return nil, -1, status.ErrInvalidArgs
	}
	if len(values) > s.limits.MaxWaitHandles {
		return nil, -1, status.ErrOutOfRange
	}
	if len(values) == 0 {
		// A pure sleep; nothing can ever wake it except the clock.
		result, _ := s.blockedWait(object.NewWaitEvent(), timeoutDuration(timeoutNs))
		return nil, -1, result.Status()
	}

	ev := object.NewWaitEvent()
	observers := make([]waiter.StateObserver, len(values))
	for i, v := range values {
		gerr := p.WithHandleRights(v, object.RightRead, func(h *handle.Handle) error {
			return observers[i].Begin(ev, h, watching[i], uint64(i))
		})
		if gerr != nil {
			for j := 0; j < i; j++ {
				observers[j].End()
			}
			return nil, -1, gerr
		}
	}

	result, context := s.blockedWait(ev, timeoutDuration(timeoutNs))

	states = make([]object.SignalsState, len(values))
	for i := range observers {
		states[i] = observers[i].End()
	}
	index = -1
	if result.HasContext() {
		index = int(context)
	}
	return states, index, result.Status()
}
