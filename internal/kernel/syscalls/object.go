package syscalls

import (
	"time"

	"github.com/jixiang52002/magenta/internal/kernel/handle"
	"github.com/jixiang52002/magenta/internal/kernel/ipc"
	"github.com/jixiang52002/magenta/internal/kernel/object"
	"github.com/jixiang52002/magenta/internal/kernel/status"
	"github.com/jixiang52002/magenta/internal/kernel/task"
)

// EventCreate makes a user-signalable event object.
func (s *System) EventCreate(p *task.Process) (v handle.Value, err error) {
	defer func(start time.Time) { s.record("event_create", start, err) }(time.Now())

	e, rights := object.NewEvent()
	v, err = s.install(p, e, rights)
	if err != nil {
		return handle.Invalid, err
	}
	s.created(object.TypeEvent)
	return v, nil
}

// ResourceCreate makes a named resource token.
func (s *System) ResourceCreate(p *task.Process, name string) (v handle.Value, err error) {
	defer func(start time.Time) { s.record("resource_create", start, err) }(time.Now())

	r, rights := object.NewResource(name)
	v, err = s.install(p, r, rights)
	if err != nil {
		return handle.Invalid, err
	}
	s.created(object.TypeResource)
	return v, nil
}

// ObjectSignal clears then sets user signal bits on v's object.
func (s *System) ObjectSignal(p *task.Process, v handle.Value, clearMask, setMask object.Signals) (err error) {
	defer func(start time.Time) { s.record("object_signal", start, err) }(time.Now())

	d, _, err := p.GetDispatcherRights(v, object.RightWrite)
	if err != nil {
		return err
	}
	defer object.Release(d)
	sig, ok := d.(object.Signaler)
	if !ok {
		return status.ErrNotSupported
	}
	return sig.UserSignal(clearMask, setMask)
}

// HandleBasicInfo is the handle-basic info topic.
type HandleBasicInfo struct {
	Koid   object.Koid          `json:"koid"`
	Rights object.Rights        `json:"rights"`
	Type   object.Type          `json:"type"`
	Props  uint32               `json:"props"`
	Peer   object.Koid          `json:"peer_koid,omitempty"`
	State  *object.SignalsState `json:"state,omitempty"`
}

// Prop bits reported by HandleBasicInfo.
const PropWaitable uint32 = 1 << 0

// ProcessInfo is the process info topic.
type ProcessInfo struct {
	Koid        object.Koid `json:"koid"`
	Name        string      `json:"name"`
	State       string      `json:"state"`
	ReturnCode  int32       `json:"return_code"`
	ThreadCount int         `json:"thread_count"`
	HandleCount int         `json:"handle_count"`
}

// ObjectGetInfoHandleValid reports only whether v currently resolves.
func (s *System) ObjectGetInfoHandleValid(p *task.Process, v handle.Value) (err error) {
	defer func(start time.Time) { s.record("object_get_info", start, err) }(time.Now())

	err = p.ValidateHandle(v)
	return err
}

// ObjectGetInfoHandleBasic reports identity, rights, and current
// signal state for v.
func (s *System) ObjectGetInfoHandleBasic(p *task.Process, v handle.Value) (info HandleBasicInfo, err error) {
	defer func(start time.Time) { s.record("object_get_info", start, err) }(time.Now())

	err = p.WithHandleRights(v, 0, func(h *handle.Handle) error {
		d := h.Dispatcher()
		info = HandleBasicInfo{
			Koid:   d.Koid(),
			Rights: h.Rights(),
			Type:   d.Type(),
		}
		if tracker := d.StateTracker(); tracker != nil && tracker.Waitable() {
			info.Props |= PropWaitable
			st := tracker.State()
			info.State = &st
		}
		if ph, ok := d.(object.PeerHolder); ok {
			info.Peer = ph.PeerKoid()
		}
		return nil
	})
	if err != nil {
		return HandleBasicInfo{}, err
	}
	return info, nil
}

// ObjectGetInfoProcess reports lifecycle state for a process handle.
func (s *System) ObjectGetInfoProcess(p *task.Process, v handle.Value) (info ProcessInfo, err error) {
	defer func(start time.Time) { s.record("object_get_info", start, err) }(time.Now())

	// A retained dispatcher, not a lock-held lookup: the target's own
	// table lock is taken below, and the target may be the caller.
	d, _, err := p.GetDispatcherRights(v, 0)
	if err != nil {
		return ProcessInfo{}, err
	}
	defer object.Release(d)
	target, ok := d.(*task.Process)
	if !ok {
		return ProcessInfo{}, status.ErrWrongType
	}
	return ProcessInfo{
		Koid:        target.Koid(),
		Name:        target.Name(),
		State:       target.State().String(),
		ReturnCode:  target.ReturnCode(),
		ThreadCount: target.ThreadCount(),
		HandleCount: target.HandleTableSize(),
	}, nil
}

// Property selectors for get/set property.
const (
	PropBadHandlePolicy uint32 = iota + 1
	PropDataPipeReadThreshold
	PropDataPipeWriteThreshold
)

// ObjectGetProperty reads a numeric property of v's object.
func (s *System) ObjectGetProperty(p *task.Process, v handle.Value, prop uint32) (value uint64, err error) {
	defer func(start time.Time) { s.record("object_get_property", start, err) }(time.Now())

	d, _, err := p.GetDispatcherRights(v, object.RightGetProperty)
	if err != nil {
		return 0, err
	}
	defer object.Release(d)
	switch prop {
	case PropBadHandlePolicy:
		if _, ok := d.(*task.Process); !ok {
			return 0, status.ErrWrongType
		}
		return uint64(s.policy), nil
	case PropDataPipeReadThreshold:
		cons, ok := d.(*ipc.Consumer)
		if !ok {
			return 0, status.ErrWrongType
		}
		return uint64(cons.ReadThreshold()), nil
	case PropDataPipeWriteThreshold:
		prod, ok := d.(*ipc.Producer)
		if !ok {
			return 0, status.ErrWrongType
		}
		return uint64(prod.WriteThreshold()), nil
	default:
		return 0, status.ErrInvalidArgs
	}
}

// ObjectSetProperty writes a numeric property of v's object.
func (s *System) ObjectSetProperty(p *task.Process, v handle.Value, prop uint32, value uint64) (err error) {
	defer func(start time.Time) { s.record("object_set_property", start, err) }(time.Now())

	d, _, err := p.GetDispatcherRights(v, object.RightSetProperty)
	if err != nil {
		return err
	}
	defer object.Release(d)
	switch prop {
	case PropDataPipeReadThreshold:
		cons, ok := d.(*ipc.Consumer)
		if !ok {
			return status.ErrWrongType
		}
		return cons.SetReadThreshold(int(value))
	case PropDataPipeWriteThreshold:
		prod, ok := d.(*ipc.Producer)
		if !ok {
			return status.ErrWrongType
		}
		return prod.SetWriteThreshold(int(value))
	default:
		return status.ErrInvalidArgs
	}
}
