package syscalls

import (
	"time"

	"github.com/jixiang52002/magenta/internal/kernel/handle"
	"github.com/jixiang52002/magenta/internal/kernel/ipc"
	"github.com/jixiang52002/magenta/internal/kernel/object"
	"github.com/jixiang52002/magenta/internal/kernel/status"
	"github.com/jixiang52002/magenta/internal/kernel/task"
)

// MessagePipeCreate creates a connected endpoint pair in the caller's
// table. With ipc.FlagReplyPipe set, the second endpoint is the reply
// side.
func (s *System) MessagePipeCreate(p *task.Process, flags uint32) (v0, v1 handle.Value, err error) {
	defer func(start time.Time) { s.record("msgpipe_create", start, err) }(time.Now())

	if flags&^ipc.FlagReplyPipe != 0 {
		return handle.Invalid, handle.Invalid, status.ErrInvalidArgs
	}
	e0, e1, rights := ipc.NewMessagePipe(s.arena, flags)
	v0, err = s.install(p, e0, rights)
	if err != nil {
		object.Release(e1)
		return handle.Invalid, handle.Invalid, err
	}
	v1, err = s.install(p, e1, rights)
	if err != nil {
		if h, rerr := p.RemoveHandle(v0); rerr == nil {
			s.arena.Delete(h)
		}
		return handle.Invalid, handle.Invalid, err
	}
	s.created(object.TypeMessagePipe)
	s.created(object.TypeMessagePipe)
	return v0, v1, nil
}

// MessagePipeWrite queues data and handles to the peer of v. Handle
// transfer is all or nothing: on any failure every named handle is
// back in the caller's table, untouched.
func (s *System) MessagePipeWrite(p *task.Process, v handle.Value, data []byte, handleValues []handle.Value) (err error) {
	defer func(start time.Time) { s.record("msgpipe_write", start, err) }(time.Now())

	d, _, err := p.GetDispatcherRights(v, object.RightWrite)
	if err != nil {
		return err
	}
	defer object.Release(d)
	ep, ok := d.(*ipc.Endpoint)
	if !ok {
		return status.ErrWrongType
	}
	if len(data) > s.limits.MaxMessageBytes {
		return status.ErrOutOfRange
	}
	if len(handleValues) > s.limits.MaxMessageHandles {
		return status.ErrOutOfRange
	}

	// The same handle twice in one message would double-transfer one
	// arena slot.
	selfIndex := -1
	seen := make(map[handle.Value]struct{}, len(handleValues))
	for i, hv := range handleValues {
		if _, dup := seen[hv]; dup {
			return status.ErrInvalidArgs
		}
		seen[hv] = struct{}{}
		if hv == v {
			selfIndex = i
		}
	}
	if ep.IsReplyPipe() {
		// A reply pipe write must carry its own endpoint handle, last.
		if selfIndex != len(handleValues)-1 || len(handleValues) == 0 {
			return status.ErrBadState
		}
	} else if selfIndex >= 0 {
		return status.ErrNotSupported
	}

	moved, err := p.RemoveHandles(handleValues)
	if err != nil {
		return err
	}
	for _, mh := range moved {
		if !mh.Rights().Has(object.RightTransfer) {
			for _, back := range moved {
				p.UndoRemove(back)
			}
			return status.ErrAccessDenied
		}
	}

	msg := &ipc.MessagePacket{
		Data:    append([]byte(nil), data...),
		Handles: moved,
	}
	if err := ep.Write(msg); err != nil {
		// The pipe disowned the packet's handles already.
		for _, back := range moved {
			p.UndoRemove(back)
		}
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordMessage(len(data), len(moved))
	}
	return nil
}

// MessagePipeRead dequeues the next message on v. When the provided
// capacities cannot hold it, the message stays queued and the needed
// sizes are reported with ErrBufferTooSmall, unless mayDiscard is set,
// in which case the message is consumed and dropped. Arriving handles
// are re-homed into the caller's table.
func (s *System) MessagePipeRead(p *task.Process, v handle.Value, byteCap, handleCap int, mayDiscard bool) (data []byte, handles []handle.Value, numBytes, numHandles int, err error) {
	defer func(start time.Time) { s.record("msgpipe_read", start, err) }(time.Now())

	d, _, err := p.GetDispatcherRights(v, object.RightRead)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	defer object.Release(d)
	ep, ok := d.(*ipc.Endpoint)
	if !ok {
		return nil, nil, 0, 0, status.ErrWrongType
	}

	for {
		numBytes, numHandles, err = ep.BeginRead()
		if err != nil {
			return nil, nil, 0, 0, err
		}
		if numBytes > byteCap || numHandles > handleCap {
			if !mayDiscard {
				return nil, nil, numBytes, numHandles, status.ErrBufferTooSmall
			}
			msg, aerr := ep.AcceptRead()
			if aerr != nil {
				// Lost the two-phase race; go around again.
				continue
			}
			for _, mh := range msg.Handles {
				s.arena.Delete(mh)
			}
			return nil, nil, numBytes, numHandles, status.ErrBufferTooSmall
		}

		msg, aerr := ep.AcceptRead()
		if aerr != nil {
			continue
		}
		handles = make([]handle.Value, 0, len(msg.Handles))
		for _, mh := range msg.Handles {
			// Flush waits registered by the previous owner before the
			// handle becomes visible here.
			if tracker := mh.Dispatcher().StateTracker(); tracker != nil {
				tracker.Cancel(mh)
			}
			handles = append(handles, p.AddHandle(mh))
		}
		return msg.Data, handles, len(msg.Data), len(handles), nil
	}
}
