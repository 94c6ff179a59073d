package syscalls

import (
	"time"

	"github.com/jixiang52002/magenta/internal/kernel/task"
)

// FutexWait parks the caller on addr within its process's futex table,
// provided the word still holds expected.
func (s *System) FutexWait(p *task.Process, addr *int32, expected int32, timeoutNs int64) (err error) {
	defer func(start time.Time) { s.record("futex_wait", start, err) }(time.Now())

	if s.metrics != nil {
		s.metrics.WaitersBlocked.Inc()
		start := time.Now()
		defer func() {
			s.metrics.WaitersBlocked.Dec()
			s.metrics.WaitDuration.Observe(time.Since(start).Seconds())
		}()
	}
	return p.Futexes().Wait(addr, expected, timeoutDuration(timeoutNs))
}

// FutexWake releases up to count waiters parked on addr.
func (s *System) FutexWake(p *task.Process, addr *int32, count int) int {
	start := time.Now()
	n := p.Futexes().Wake(addr, count)
	s.record("futex_wake", start, nil)
	return n
}

// FutexRequeue wakes up to wakeCount waiters on addr and moves up to
// requeueCount of the rest to requeueAddr.
func (s *System) FutexRequeue(p *task.Process, addr *int32, wakeCount int, requeueAddr *int32, requeueCount int) (n int, err error) {
	defer func(start time.Time) { s.record("futex_requeue", start, err) }(time.Now())

	return p.Futexes().Requeue(addr, wakeCount, requeueAddr, requeueCount)
}
