package syscalls

import (
	"time"

	"github.com/jixiang52002/magenta/internal/kernel/handle"
	"github.com/jixiang52002/magenta/internal/kernel/ipc"
	"github.com/jixiang52002/magenta/internal/kernel/object"
	"github.com/jixiang52002/magenta/internal/kernel/status"
	"github.com/jixiang52002/magenta/internal/kernel/task"
)

// VmoCreate makes a vm object of the given byte size.
func (s *System) VmoCreate(p *task.Process, size uint64) (v handle.Value, err error) {
	defer func(start time.Time) { s.record("vmo_create", start, err) }(time.Now())

	vmo, rights, err := object.NewVmObject(size)
	if err != nil {
		return handle.Invalid, err
	}
	v, err = s.install(p, vmo, rights)
	if err != nil {
		return handle.Invalid, err
	}
	s.created(object.TypeVmObject)
	return v, nil
}

// lookupVmo returns the vm object retained; the caller releases it.
func (s *System) lookupVmo(p *task.Process, v handle.Value, want object.Rights) (*object.VmObject, error) {
	d, _, err := p.GetDispatcherRights(v, want)
	if err != nil {
		return nil, err
	}
	vmo, ok := d.(*object.VmObject)
	if !ok {
		object.Release(d)
		return nil, status.ErrWrongType
	}
	return vmo, nil
}

// VmoRead copies up to len(buf) bytes from the object at offset.
func (s *System) VmoRead(p *task.Process, v handle.Value, buf []byte, offset uint64) (n int, err error) {
	defer func(start time.Time) { s.record("vmo_read", start, err) }(time.Now())

	vmo, err := s.lookupVmo(p, v, object.RightRead)
	if err != nil {
		return 0, err
	}
	defer object.Release(vmo)
	return vmo.Read(buf, offset)
}

// VmoWrite copies data into the object at offset.
func (s *System) VmoWrite(p *task.Process, v handle.Value, data []byte, offset uint64) (n int, err error) {
	defer func(start time.Time) { s.record("vmo_write", start, err) }(time.Now())

	vmo, err := s.lookupVmo(p, v, object.RightWrite)
	if err != nil {
		return 0, err
	}
	defer object.Release(vmo)
	return vmo.Write(data, offset)
}

// VmoGetSize reports the object's current byte size.
func (s *System) VmoGetSize(p *task.Process, v handle.Value) (size uint64, err error) {
	defer func(start time.Time) { s.record("vmo_get_size", start, err) }(time.Now())

	vmo, err := s.lookupVmo(p, v, 0)
	if err != nil {
		return 0, err
	}
	defer object.Release(vmo)
	return vmo.Size(), nil
}

// VmoSetSize grows or truncates the object.
func (s *System) VmoSetSize(p *task.Process, v handle.Value, size uint64) (err error) {
	defer func(start time.Time) { s.record("vmo_set_size", start, err) }(time.Now())

	vmo, err := s.lookupVmo(p, v, object.RightWrite)
	if err != nil {
		return err
	}
	defer object.Release(vmo)
	return vmo.SetSize(size)
}

// DataPipeCreate makes a producer/consumer pair over one ring of the
// given capacity (zero selects the default).
func (s *System) DataPipeCreate(p *task.Process, capacity int) (producerV, consumerV handle.Value, err error) {
	defer func(start time.Time) { s.record("datapipe_create", start, err) }(time.Now())

	prod, cons, prodRights, consRights := ipc.NewDataPipe(capacity)
	producerV, err = s.install(p, prod, prodRights)
	if err != nil {
		object.Release(cons)
		return handle.Invalid, handle.Invalid, err
	}
	consumerV, err = s.install(p, cons, consRights)
	if err != nil {
		if h, rerr := p.RemoveHandle(producerV); rerr == nil {
			s.arena.Delete(h)
		}
		return handle.Invalid, handle.Invalid, err
	}
	s.created(object.TypeDataPipeProducer)
	s.created(object.TypeDataPipeConsumer)
	return producerV, consumerV, nil
}

// DataPipeWrite queues bytes on the producer end named by v.
func (s *System) DataPipeWrite(p *task.Process, v handle.Value, data []byte) (n int, err error) {
	defer func(start time.Time) { s.record("datapipe_write", start, err) }(time.Now())

	d, _, err := p.GetDispatcherRights(v, object.RightWrite)
	if err != nil {
		return 0, err
	}
	defer object.Release(d)
	prod, ok := d.(*ipc.Producer)
	if !ok {
		return 0, status.ErrWrongType
	}
	return prod.Write(data)
}

// DataPipeRead drains bytes from the consumer end named by v.
func (s *System) DataPipeRead(p *task.Process, v handle.Value, buf []byte) (n int, err error) {
	defer func(start time.Time) { s.record("datapipe_read", start, err) }(time.Now())

	d, _, err := p.GetDispatcherRights(v, object.RightRead)
	if err != nil {
		return 0, err
	}
	defer object.Release(d)
	cons, ok := d.(*ipc.Consumer)
	if !ok {
		return 0, status.ErrWrongType
	}
	return cons.Read(buf)
}

// SocketCreate makes a connected bidirectional socket pair with
// per-direction buffers of the given capacity (zero selects the
// default).
func (s *System) SocketCreate(p *task.Process, capacity int) (v0, v1 handle.Value, err error) {
	defer func(start time.Time) { s.record("socket_create", start, err) }(time.Now())

	s0, s1, rights := ipc.NewSocketPair(capacity)
	v0, err = s.install(p, s0, rights)
	if err != nil {
		object.Release(s1)
		return handle.Invalid, handle.Invalid, err
	}
	v1, err = s.install(p, s1, rights)
	if err != nil {
		if h, rerr := p.RemoveHandle(v0); rerr == nil {
			s.arena.Delete(h)
		}
		return handle.Invalid, handle.Invalid, err
	}
	s.created(object.TypeSocket)
	s.created(object.TypeSocket)
	return v0, v1, nil
}

// lookupSocket returns the socket retained; the caller releases it.
func (s *System) lookupSocket(p *task.Process, v handle.Value, want object.Rights) (*ipc.Socket, error) {
	d, _, err := p.GetDispatcherRights(v, want)
	if err != nil {
		return nil, err
	}
	sock, ok := d.(*ipc.Socket)
	if !ok {
		object.Release(d)
		return nil, status.ErrWrongType
	}
	return sock, nil
}

// SocketWrite streams bytes toward the peer of v.
func (s *System) SocketWrite(p *task.Process, v handle.Value, data []byte) (n int, err error) {
	defer func(start time.Time) { s.record("socket_write", start, err) }(time.Now())

	sock, err := s.lookupSocket(p, v, object.RightWrite)
	if err != nil {
		return 0, err
	}
	defer object.Release(sock)
	return sock.Write(data)
}

// SocketRead drains bytes buffered at v.
func (s *System) SocketRead(p *task.Process, v handle.Value, buf []byte) (n int, err error) {
	defer func(start time.Time) { s.record("socket_read", start, err) }(time.Now())

	sock, err := s.lookupSocket(p, v, object.RightRead)
	if err != nil {
		return 0, err
	}
	defer object.Release(sock)
	return sock.Read(buf)
}

// LogCreate makes a handle onto the shared kernel log. The readable
// flag grants a cursor over past and future records.
func (s *System) LogCreate(p *task.Process, flags uint32) (v handle.Value, err error) {
	defer func(start time.Time) { s.record("log_create", start, err) }(time.Now())

	if flags&^object.LogFlagReadable != 0 {
		return handle.Invalid, status.ErrInvalidArgs
	}
	l, rights := object.NewLog(s.dlog, flags)
	v, err = s.install(p, l, rights)
	if err != nil {
		return handle.Invalid, err
	}
	s.created(object.TypeLog)
	return v, nil
}

// lookupLog returns the log retained; the caller releases it.
func (s *System) lookupLog(p *task.Process, v handle.Value, want object.Rights) (*object.Log, error) {
	d, _, err := p.GetDispatcherRights(v, want)
	if err != nil {
		return nil, err
	}
	l, ok := d.(*object.Log)
	if !ok {
		object.Release(d)
		return nil, status.ErrWrongType
	}
	return l, nil
}

// LogWrite appends one record attributed to the calling process.
func (s *System) LogWrite(p *task.Process, v handle.Value, data []byte) (err error) {
	defer func(start time.Time) { s.record("log_write", start, err) }(time.Now())

	l, err := s.lookupLog(p, v, object.RightWrite)
	if err != nil {
		return err
	}
	defer object.Release(l)
	return l.Write(p.Koid(), string(data))
}

// LogRead pops the next unread record at this handle's cursor.
// ErrBadState means drained for now.
func (s *System) LogRead(p *task.Process, v handle.Value) (rec object.LogRecord, err error) {
	defer func(start time.Time) { s.record("log_read", start, err) }(time.Now())

	l, err := s.lookupLog(p, v, object.RightRead)
	if err != nil {
		return object.LogRecord{}, err
	}
	defer object.Release(l)
	return l.Read()
}
