package syscalls

import (
	"time"

	"github.com/jixiang52002/magenta/internal/kernel/handle"
	"github.com/jixiang52002/magenta/internal/kernel/object"
	"github.com/jixiang52002/magenta/internal/kernel/status"
	"github.com/jixiang52002/magenta/internal/kernel/task"
)

// HandleClose removes v from the caller's table and destroys the
// handle, cancelling any waits parked on it.
func (s *System) HandleClose(p *task.Process, v handle.Value) (err error) {
	defer func(start time.Time) { s.record("handle_close", start, err) }(time.Now())

	h, err := p.RemoveHandle(v)
	if err != nil {
		return err
	}
	s.arena.Delete(h)
	return nil
}

// resolveRights applies the same-rights convention: the sentinel keeps
// the source mask, anything else must be a subset of it.
func resolveRights(src object.Rights, requested object.Rights) (object.Rights, error) {
	if requested == object.RightSameRights {
		return src, nil
	}
	if !src.Has(requested) {
		return 0, status.ErrInvalidArgs
	}
	return requested, nil
}

// HandleDuplicate creates a second handle to v's object with the
// requested rights. The source must carry the duplicate right.
func (s *System) HandleDuplicate(p *task.Process, v handle.Value, requested object.Rights) (nv handle.Value, err error) {
	defer func(start time.Time) { s.record("handle_duplicate", start, err) }(time.Now())

	// The dup happens under the table lock so the source cannot be
	// closed out from under it; only the install of the new handle
	// happens after, on a handle nothing else can reach yet.
	var nh *handle.Handle
	err = p.WithHandleRights(v, 0, func(h *handle.Handle) error {
		if !h.Rights().Has(object.RightDuplicate) {
			return status.ErrAccessDenied
		}
		rights, rerr := resolveRights(h.Rights(), requested)
		if rerr != nil {
			return rerr
		}
		nh = s.arena.Dup(h, rights)
		if nh == nil {
			return status.ErrNoMemory
		}
		return nil
	})
	if err != nil {
		return handle.Invalid, err
	}
	return p.AddHandle(nh), nil
}

// HandleReplace exchanges v for a fresh handle to the same object with
// narrowed rights. No duplicate right is needed; the old handle dies.
// On failure the original survives untouched.
func (s *System) HandleReplace(p *task.Process, v handle.Value, requested object.Rights) (nv handle.Value, err error) {
	defer func(start time.Time) { s.record("handle_replace", start, err) }(time.Now())

	h, err := p.RemoveHandle(v)
	if err != nil {
		return handle.Invalid, err
	}
	rights, rerr := resolveRights(h.Rights(), requested)
	if rerr != nil {
		p.UndoRemove(h)
		return handle.Invalid, rerr
	}
	nh := s.arena.Dup(h, rights)
	if nh == nil {
		p.UndoRemove(h)
		return handle.Invalid, status.ErrNoMemory
	}
	nv = p.AddHandle(nh)
	s.arena.Delete(h)
	return nv, nil
}
