package syscalls

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/jixiang52002/magenta/internal/kernel/handle"
	"github.com/jixiang52002/magenta/internal/kernel/object"
	"github.com/jixiang52002/magenta/internal/kernel/status"
	"github.com/jixiang52002/magenta/internal/kernel/task"
	"github.com/jixiang52002/magenta/internal/kernel/waiter"
)

// ProcessEntry is the body of a process's first thread. The bootstrap
// value names the handle transferred in at start, or handle.Invalid.
type ProcessEntry func(ctx context.Context, t *task.Thread, bootstrap handle.Value)

// ProcessCreate makes a new process in the initial state and returns a
// handle to it.
func (s *System) ProcessCreate(p *task.Process, name string) (v handle.Value, err error) {
	defer func(start time.Time) { s.record("process_create", start, err) }(time.Now())

	np, rights, err := task.NewProcess(s.registry, s.arena, name, s.policy, s.logger)
	if err != nil {
		return handle.Invalid, err
	}
	v, err = s.install(p, np, rights)
	if err != nil {
		return handle.Invalid, err
	}
	s.created(object.TypeProcess)
	if s.metrics != nil {
		s.metrics.RecordProcessCreated()
	}
	return v, nil
}

// ProcessStart launches the target's first thread. When argV names a
// handle, it is moved out of the caller and into the target before the
// thread runs, and its new value is passed as the bootstrap.
func (s *System) ProcessStart(p *task.Process, procV, argV handle.Value, entry ProcessEntry) (err error) {
	defer func(start time.Time) { s.record("process_start", start, err) }(time.Now())

	d, _, err := p.GetDispatcherRights(procV, object.RightWrite)
	if err != nil {
		return err
	}
	defer object.Release(d)
	target, ok := d.(*task.Process)
	if !ok {
		return status.ErrWrongType
	}
	if entry == nil {
		return status.ErrInvalidArgs
	}

	bootstrap := handle.Invalid
	var moved *handle.Handle
	if argV != handle.Invalid {
		moved, err = p.RemoveHandle(argV)
		if err != nil {
			return err
		}
		if !moved.Rights().Has(object.RightTransfer) {
			p.UndoRemove(moved)
			return status.ErrAccessDenied
		}
		if tracker := moved.Dispatcher().StateTracker(); tracker != nil {
			tracker.Cancel(moved)
		}
		bootstrap = target.AddHandle(moved)
	}

	t, _, err := task.NewThread(target, "main")
	if err == nil {
		err = t.Start(func(ctx context.Context, t *task.Thread) {
			entry(ctx, t, bootstrap)
		})
	}
	if err != nil && moved != nil {
		// The target never ran; pull the bootstrap back out.
		if back, rerr := target.RemoveHandle(bootstrap); rerr == nil {
			p.UndoRemove(back)
		}
	}
	if err == nil {
		s.created(object.TypeThread)
	}
	return err
}

// ThreadCreate makes a thread in the process named by procV and
// returns a handle to it. The thread does not run until started.
func (s *System) ThreadCreate(p *task.Process, procV handle.Value, name string) (v handle.Value, err error) {
	defer func(start time.Time) { s.record("thread_create", start, err) }(time.Now())

	d, _, err := p.GetDispatcherRights(procV, object.RightWrite)
	if err != nil {
		return handle.Invalid, err
	}
	defer object.Release(d)
	target, ok := d.(*task.Process)
	if !ok {
		return handle.Invalid, status.ErrWrongType
	}
	t, rights, err := task.NewThread(target, name)
	if err != nil {
		return handle.Invalid, err
	}
	v, err = s.install(p, t, rights)
	if err != nil {
		t.Kill()
		return handle.Invalid, err
	}
	s.created(object.TypeThread)
	return v, nil
}

// ThreadStart launches a created thread.
func (s *System) ThreadStart(p *task.Process, threadV handle.Value, entry task.EntryFunc) (err error) {
	defer func(start time.Time) { s.record("thread_start", start, err) }(time.Now())

	d, _, err := p.GetDispatcherRights(threadV, object.RightWrite)
	if err != nil {
		return err
	}
	defer object.Release(d)
	t, ok := d.(*task.Thread)
	if !ok {
		return status.ErrWrongType
	}
	return t.Start(entry)
}

// TaskKill forces the process or thread named by v toward its end
// state.
func (s *System) TaskKill(p *task.Process, v handle.Value) (err error) {
	defer func(start time.Time) { s.record("task_kill", start, err) }(time.Now())

	d, _, err := p.GetDispatcherRights(v, object.RightWrite)
	if err != nil {
		return err
	}
	defer object.Release(d)
	switch t := d.(type) {
	case *task.Process:
		t.Kill(task.ExitCodeKilled)
		return nil
	case *task.Thread:
		t.Kill()
		return nil
	default:
		return status.ErrWrongType
	}
}

// ProcessExit terminates the calling process with retcode. Never
// returns an error; the caller's context is cancelled as a side
// effect.
func (s *System) ProcessExit(p *task.Process, retcode int32) {
	start := time.Now()
	p.Exit(retcode)
	s.record("process_exit", start, nil)
}

// ProcessMapVm records a mapping of vmoV into the address space of the
// process named by procV and returns the assigned base address.
func (s *System) ProcessMapVm(p *task.Process, procV, vmoV handle.Value, offset, length uint64) (base uint64, err error) {
	defer func(start time.Time) { s.record("process_map_vm", start, err) }(time.Now())

	pd, _, err := p.GetDispatcherRights(procV, object.RightWrite)
	if err != nil {
		return 0, err
	}
	defer object.Release(pd)
	target, ok := pd.(*task.Process)
	if !ok {
		return 0, status.ErrWrongType
	}
	vd, _, err := p.GetDispatcherRights(vmoV, object.RightMap)
	if err != nil {
		return 0, err
	}
	defer object.Release(vd)
	vmo, ok := vd.(*object.VmObject)
	if !ok {
		return 0, status.ErrWrongType
	}
	return target.AddressSpace().Map(vmo, offset, length)
}

// ProcessUnmapVm removes the mapping anchored at base.
func (s *System) ProcessUnmapVm(p *task.Process, procV handle.Value, base uint64) (err error) {
	defer func(start time.Time) { s.record("process_unmap_vm", start, err) }(time.Now())

	pd, _, err := p.GetDispatcherRights(procV, object.RightWrite)
	if err != nil {
		return err
	}
	defer object.Release(pd)
	target, ok := pd.(*task.Process)
	if !ok {
		return status.ErrWrongType
	}
	return target.AddressSpace().Unmap(base)
}

// exceptionBinding adapts an I/O port to the process death report.
type exceptionBinding struct {
	port *waiter.Port
	key  uint64
}

func (b *exceptionBinding) OnProcessDeath(koid object.Koid, retcode int32) {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint64(data[0:8], uint64(koid))
	binary.LittleEndian.PutUint32(data[8:12], uint32(retcode))
	// Nobody left to listen is not an error worth reporting to a
	// process that no longer exists.
	_ = b.port.Queue(&waiter.Packet{Key: b.key, Type: waiter.PacketTypeException, Data: data})
}

func (b *exceptionBinding) Close() {
	object.Release(b.port)
}

// ProcessBindExceptionPort binds (or with portV == handle.Invalid,
// unbinds) the port that receives the target's death packet.
func (s *System) ProcessBindExceptionPort(p *task.Process, procV, portV handle.Value, key uint64) (err error) {
	defer func(start time.Time) { s.record("process_bind_exception_port", start, err) }(time.Now())

	pd, _, err := p.GetDispatcherRights(procV, object.RightWrite)
	if err != nil {
		return err
	}
	defer object.Release(pd)
	target, ok := pd.(*task.Process)
	if !ok {
		return status.ErrWrongType
	}
	if portV == handle.Invalid {
		return target.SetExceptionPort(nil)
	}
	ptd, _, err := p.GetDispatcherRights(portV, object.RightWrite)
	if err != nil {
		return err
	}
	port, ok := ptd.(*waiter.Port)
	if !ok {
		object.Release(ptd)
		return status.ErrWrongType
	}
	// The binding takes over the reference held by the lookup;
	// binding.Close releases it.
	binding := &exceptionBinding{port: port, key: key}
	if err := target.SetExceptionPort(binding); err != nil {
		binding.Close()
		return err
	}
	return nil
}
