// Package handle implements the global handle arena: a fixed-capacity,
// generation-counted slot table from which every process-scoped
// capability is allocated.
//
// A handle binds one dispatcher reference to a rights mask and an
// owning-process koid. Slots are reused; each reuse bumps the slot's
// generation so a stale index from a previous life never validates.
// The packed (generation, slot) index is what processes obfuscate into
// the opaque values userspace sees.
package handle

import (
	"sync"

	"github.com/jixiang52002/magenta/internal/kernel/object"
)

// Value is the opaque 32-bit handle value visible to userspace.
// Zero is never a valid value.
type Value uint32

// Invalid is the reserved "no handle" value.
const Invalid Value = 0

const (
	slotBits = 15
	genBits  = 14

	// MaxHandles is the system-wide live handle capacity. It must fit
	// slotBits; packed indexes must stay below 1<<29 so the opaque
	// value transform never collides with the sign bit.
	MaxHandles = 1 << slotBits

	slotMask = 1<<slotBits - 1
	genMask  = 1<<genBits - 1
)

// Handle is one live arena entry. Handles move between process tables
// and in-flight message packets; at any instant at most one owner koid
// is recorded (zero while in flight).
type Handle struct {
	slot  uint32
	gen   uint32
	disp  object.Dispatcher
	right object.Rights
	owner object.Koid
}

// Dispatcher returns the object this handle references.
func (h *Handle) Dispatcher() object.Dispatcher { return h.disp }

// Rights returns the capability mask.
func (h *Handle) Rights() object.Rights { return h.right }

// Owner returns the koid of the owning process, or zero while the
// handle is in flight inside a message packet.
func (h *Handle) Owner() object.Koid { return h.owner }

// SetOwner records the owning process. Callers hold the owning
// process's handle-table lock.
func (h *Handle) SetOwner(koid object.Koid) { h.owner = koid }

// Index packs the handle's generation and slot into the dense 29-bit
// index processes obfuscate into opaque values.
func (h *Handle) Index() uint32 {
	return h.gen<<slotBits | h.slot
}

type slot struct {
	h    Handle
	gen  uint32
	live bool
}

// Arena is the global handle slab. All allocation and lookup is O(1)
// under one mutex held only for slot bookkeeping; handle destruction
// side effects run outside it.
type Arena struct {
	mu    sync.Mutex
	slots []slot
	free  []uint32
	live  int
}

// NewArena creates an arena with the given capacity, clamped to
// MaxHandles.
func NewArena(capacity int) *Arena {
	if capacity <= 0 || capacity > MaxHandles {
		capacity = MaxHandles
	}
	a := &Arena{
		slots: make([]slot, capacity),
		free:  make([]uint32, 0, capacity),
	}
	for i := capacity - 1; i >= 0; i-- {
		a.free = append(a.free, uint32(i))
	}
	return a
}

// Alloc binds dispatcher and rights into a fresh handle, consuming the
// caller's reference to the dispatcher. Returns nil when the arena is
// exhausted; the caller still owns its reference then and must release
// it (or keep it) rather than leak the object.
func (a *Arena) Alloc(d object.Dispatcher, rights object.Rights) *Handle {
	a.mu.Lock()
	h := a.allocLocked(d, rights)
	a.mu.Unlock()
	if h != nil {
		object.AddHandle(d)
	}
	return h
}

// Dup allocates a new handle to src's dispatcher with the given
// rights, taking its own reference. Returns nil when exhausted.
func (a *Arena) Dup(src *Handle, rights object.Rights) *Handle {
	d := src.Dispatcher()
	a.mu.Lock()
	h := a.allocLocked(d, rights)
	a.mu.Unlock()
	if h != nil {
		object.Retain(d)
		object.AddHandle(d)
	}
	return h
}

func (a *Arena) allocLocked(d object.Dispatcher, rights object.Rights) *Handle {
	if len(a.free) == 0 {
		return nil
	}
	idx := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	s := &a.slots[idx]
	s.live = true
	s.h = Handle{slot: idx, gen: s.gen, disp: d, right: rights}
	a.live++
	return &s.h
}

// Delete cancels any waiters parked on h, runs type-specific close
// logic, returns the slot to the arena, and finally drops the
// dispatcher reference. The reference release and close logic run
// outside the arena lock; releasing can destroy the object, and
// destruction must never re-enter the lock that triggered it.
func (a *Arena) Delete(h *Handle) {
	d := h.Dispatcher()

	if tracker := d.StateTracker(); tracker != nil {
		tracker.Cancel(h)
	} else if closer, ok := d.(object.Closer); ok {
		// Sad but necessary: flavors with close logic and no tracker
		// are special-cased here.
		// TODO(handle): replace with a uniform close() capability on
		// the dispatcher interface.
		closer.Close()
	}

	a.mu.Lock()
	s := &a.slots[h.slot]
	idx := h.slot
	// Zero the slot before reuse; the generation bump is what makes a
	// stale index fail validation.
	s.h = Handle{}
	s.gen = (s.gen + 1) & genMask
	s.live = false
	a.free = append(a.free, idx)
	a.live--
	a.mu.Unlock()

	object.RemoveHandle(d)
	object.Release(d)
}

// Lookup resolves a packed index back to a live handle, or nil if the
// slot is dead or the generation does not match. Owner verification is
// the caller's job (the per-process koid check).
func (a *Arena) Lookup(index uint32) *Handle {
	slotIdx := index & slotMask
	gen := index >> slotBits
	a.mu.Lock()
	defer a.mu.Unlock()
	if slotIdx >= uint32(len(a.slots)) {
		return nil
	}
	s := &a.slots[slotIdx]
	if !s.live || s.gen != gen&genMask {
		return nil
	}
	return &s.h
}

// Live reports the number of outstanding handles.
func (a *Arena) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// Capacity reports the fixed slot count.
func (a *Arena) Capacity() int { return len(a.slots) }
