package syscalls

import (
	"time"

	"github.com/jixiang52002/magenta/internal/kernel/handle"
	"github.com/jixiang52002/magenta/internal/kernel/ipc"
	"github.com/jixiang52002/magenta/internal/kernel/object"
	"github.com/jixiang52002/magenta/internal/kernel/status"
	"github.com/jixiang52002/magenta/internal/kernel/task"
	"github.com/jixiang52002/magenta/internal/kernel/waiter"
)

// PortCreate makes an empty I/O port.
func (s *System) PortCreate(p *task.Process) (v handle.Value, err error) {
	defer func(start time.Time) { s.record("port_create", start, err) }(time.Now())

	port, rights := waiter.NewPort()
	v, err = s.install(p, port, rights)
	if err != nil {
		return handle.Invalid, err
	}
	s.created(object.TypePort)
	return v, nil
}

// lookupPort returns the port retained; the caller releases it.
func (s *System) lookupPort(p *task.Process, v handle.Value, want object.Rights) (*waiter.Port, error) {
	d, _, err := p.GetDispatcherRights(v, want)
	if err != nil {
		return nil, err
	}
	port, ok := d.(*waiter.Port)
	if !ok {
		object.Release(d)
		return nil, status.ErrWrongType
	}
	return port, nil
}

// PortQueue appends a user packet carrying key and data.
func (s *System) PortQueue(p *task.Process, v handle.Value, key uint64, data []byte) (err error) {
	defer func(start time.Time) { s.record("port_queue", start, err) }(time.Now())

	port, err := s.lookupPort(p, v, object.RightWrite)
	if err != nil {
		return err
	}
	defer object.Release(port)
	return port.Queue(&waiter.Packet{
		Key:  key,
		Type: waiter.PacketTypeUser,
		Data: append([]byte(nil), data...),
	})
}

// PortWait pops the oldest packet, blocking up to the timeout.
func (s *System) PortWait(p *task.Process, v handle.Value, timeoutNs int64) (pkt *waiter.Packet, err error) {
	defer func(start time.Time) { s.record("port_wait", start, err) }(time.Now())

	port, err := s.lookupPort(p, v, object.RightRead)
	if err != nil {
		return nil, err
	}
	defer object.Release(port)
	if s.metrics != nil {
		s.metrics.WaitersBlocked.Inc()
		start := time.Now()
		defer func() {
			s.metrics.WaitersBlocked.Dec()
			s.metrics.WaitDuration.Observe(time.Since(start).Seconds())
		}()
	}
	return port.Wait(timeoutDuration(timeoutNs))
}

// PortBind subscribes the port to signal transitions of the message
// pipe endpoint named by sourceV; matching transitions queue signal
// packets carrying key.
func (s *System) PortBind(p *task.Process, portV handle.Value, key uint64, sourceV handle.Value, signals object.Signals) (err error) {
	defer func(start time.Time) { s.record("port_bind", start, err) }(time.Now())

	port, err := s.lookupPort(p, portV, object.RightWrite)
	if err != nil {
		return err
	}
	defer object.Release(port)
	sd, _, err := p.GetDispatcherRights(sourceV, object.RightRead)
	if err != nil {
		return err
	}
	defer object.Release(sd)
	ep, ok := sd.(*ipc.Endpoint)
	if !ok {
		return status.ErrWrongType
	}
	pc := waiter.NewPortClient(port, key, signals)
	if err := ep.BindPort(pc); err != nil {
		pc.Close()
		return err
	}
	return nil
}
