package syscalls

import (
	"time"

	"github.com/jixiang52002/magenta/internal/kernel/handle"
	"github.com/jixiang52002/magenta/internal/kernel/object"
	"github.com/jixiang52002/magenta/internal/kernel/status"
	"github.com/jixiang52002/magenta/internal/kernel/task"
	"github.com/jixiang52002/magenta/internal/kernel/waiter"
)

// WaitSetCreate makes an empty wait set.
func (s *System) WaitSetCreate(p *task.Process) (v handle.Value, err error) {
	defer func(start time.Time) { s.record("waitset_create", start, err) }(time.Now())

	ws, rights := waiter.NewWaitSet()
	v, err = s.install(p, ws, rights)
	if err != nil {
		return handle.Invalid, err
	}
	s.created(object.TypeWaitSet)
	return v, nil
}

// lookupWaitSet returns the set retained; the caller releases it.
func (s *System) lookupWaitSet(p *task.Process, v handle.Value, want object.Rights) (*waiter.WaitSet, error) {
	d, _, err := p.GetDispatcherRights(v, want)
	if err != nil {
		return nil, err
	}
	ws, ok := d.(*waiter.WaitSet)
	if !ok {
		object.Release(d)
		return nil, status.ErrWrongType
	}
	return ws, nil
}

// WaitSetAdd registers targetV's object in the set under cookie with
// the given signal mask.
func (s *System) WaitSetAdd(p *task.Process, wsV handle.Value, cookie uint64, targetV handle.Value, watched object.Signals) (err error) {
	defer func(start time.Time) { s.record("waitset_add", start, err) }(time.Now())

	ws, err := s.lookupWaitSet(p, wsV, object.RightWrite)
	if err != nil {
		return err
	}
	defer object.Release(ws)
	// Registered under the table lock so a racing close of the target
	// always finds the entry to cancel.
	return p.WithHandleRights(targetV, object.RightRead, func(h *handle.Handle) error {
		return ws.AddEntry(h, watched, cookie)
	})
}

// WaitSetRemove drops the membership registered under cookie.
func (s *System) WaitSetRemove(p *task.Process, wsV handle.Value, cookie uint64) (err error) {
	defer func(start time.Time) { s.record("waitset_remove", start, err) }(time.Now())

	ws, err := s.lookupWaitSet(p, wsV, object.RightWrite)
	if err != nil {
		return err
	}
	defer object.Release(ws)
	return ws.RemoveEntry(cookie)
}

// WaitSetWait blocks until any member triggers and reports up to
// maxResults of them; available counts everything pending.
func (s *System) WaitSetWait(p *task.Process, wsV handle.Value, timeoutNs int64, maxResults int) (results []waiter.Result, available int, err error) {
	defer func(start time.Time) { s.record("waitset_wait", start, err) }(time.Now())

	ws, err := s.lookupWaitSet(p, wsV, object.RightRead)
	if err != nil {
		return nil, 0, err
	}
	defer object.Release(ws)
	if maxResults < 0 {
		return nil, 0, status.ErrInvalidArgs
	}
	if s.metrics != nil {
		s.metrics.WaitersBlocked.Inc()
		start := time.Now()
		defer func() {
			s.metrics.WaitersBlocked.Dec()
			s.metrics.WaitDuration.Observe(time.Since(start).Seconds())
		}()
	}
	return ws.Wait(timeoutDuration(timeoutNs), maxResults)
}
