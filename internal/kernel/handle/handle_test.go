package handle

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jixiang52002/magenta/internal/kernel/object"
)

type fakeObject struct {
	object.Base
	tracker   *object.StateTracker
	destroyed atomic.Int32
}

func newFakeObject() *fakeObject {
	return &fakeObject{
		Base:    object.NewBase(),
		tracker: object.NewStateTracker(true, object.SignalsState{Satisfiable: object.SignalSignaled}),
	}
}

func (f *fakeObject) Type() object.Type                  { return object.TypeEvent }
func (f *fakeObject) StateTracker() *object.StateTracker { return f.tracker }
func (f *fakeObject) OnLastReference()                   { f.destroyed.Add(1) }

type cancelObserver struct {
	cancelKeys []any
}

func (c *cancelObserver) OnInitialize(object.SignalsState)  {}
func (c *cancelObserver) OnStateChange(object.SignalsState) {}
func (c *cancelObserver) OnCancel(key any) bool {
	c.cancelKeys = append(c.cancelKeys, key)
	return true
}

// TestArenaExhaustion fills a small arena to capacity and checks the
// next allocation fails without disturbing the live handles or their
// objects.
func TestArenaExhaustion(t *testing.T) {
	const capacity = 8
	a := NewArena(capacity)
	assert.Equal(t, capacity, a.Capacity())

	handles := make([]*Handle, 0, capacity)
	objs := make([]*fakeObject, 0, capacity)
	for i := 0; i < capacity; i++ {
		o := newFakeObject()
		h := a.Alloc(o, object.RightRead)
		require.NotNil(t, h)
		handles = append(handles, h)
		objs = append(objs, o)
	}
	assert.Equal(t, capacity, a.Live())

	extra := newFakeObject()
	assert.Nil(t, a.Alloc(extra, object.RightRead))
	assert.Equal(t, capacity, a.Live())

	// Everything allocated before exhaustion still resolves.
	for i, h := range handles {
		got := a.Lookup(h.Index())
		require.NotNil(t, got)
		assert.Same(t, objs[i], got.Dispatcher())
		assert.Equal(t, int32(0), objs[i].destroyed.Load())
	}

	a.Delete(handles[0])
	assert.Equal(t, capacity-1, a.Live())
	assert.NotNil(t, a.Alloc(extra, object.RightRead))
}

// TestStaleIndexFailsAfterReuse verifies the generation bump: an index
// captured before Delete never resolves to the slot's next occupant.
func TestStaleIndexFailsAfterReuse(t *testing.T) {
	a := NewArena(1)

	h := a.Alloc(newFakeObject(), object.RightRead)
	require.NotNil(t, h)
	stale := h.Index()
	a.Delete(h)

	assert.Nil(t, a.Lookup(stale))

	h2 := a.Alloc(newFakeObject(), object.RightRead)
	require.NotNil(t, h2)
	assert.Nil(t, a.Lookup(stale))
	assert.NotNil(t, a.Lookup(h2.Index()))
	assert.NotEqual(t, stale, h2.Index())
}

// TestLookupRejectsGarbage covers out-of-range slots and wrong
// generations.
func TestLookupRejectsGarbage(t *testing.T) {
	a := NewArena(4)
	assert.Nil(t, a.Lookup(0))
	assert.Nil(t, a.Lookup(1<<slotBits|3))
	assert.Nil(t, a.Lookup(100))
}

// TestDupTakesItsOwnReference verifies duplicate lifetime accounting:
// the object survives until both handles die.
func TestDupTakesItsOwnReference(t *testing.T) {
	a := NewArena(4)
	o := newFakeObject()

	h := a.Alloc(o, object.RightRead|object.RightDuplicate)
	require.NotNil(t, h)
	dup := a.Dup(h, object.RightRead)
	require.NotNil(t, dup)
	assert.Equal(t, object.RightRead, dup.Rights())
	assert.Equal(t, int64(2), o.RefCount())
	assert.Equal(t, int32(2), o.HandleCount())

	a.Delete(h)
	assert.Equal(t, int32(0), o.destroyed.Load())
	a.Delete(dup)
	assert.Equal(t, int32(1), o.destroyed.Load())
	assert.Equal(t, 0, a.Live())
}

// TestDeleteCancelsWaiters verifies Delete fires observer cancellation
// keyed by the dying handle before the slot is reused.
func TestDeleteCancelsWaiters(t *testing.T) {
	a := NewArena(4)
	o := newFakeObject()
	h := a.Alloc(o, object.RightRead)
	require.NotNil(t, h)

	obs := &cancelObserver{}
	o.tracker.AddObserver(obs)

	a.Delete(h)
	require.Len(t, obs.cancelKeys, 1)
	assert.Same(t, h, obs.cancelKeys[0])
}

// TestOwnerTransitions verifies the in-flight owner convention.
func TestOwnerTransitions(t *testing.T) {
	a := NewArena(4)
	h := a.Alloc(newFakeObject(), object.RightRead)
	require.NotNil(t, h)

	assert.Equal(t, object.Koid(0), h.Owner())
	h.SetOwner(42)
	assert.Equal(t, object.Koid(42), h.Owner())
	h.SetOwner(0)
	assert.Equal(t, object.Koid(0), h.Owner())
	a.Delete(h)
}
