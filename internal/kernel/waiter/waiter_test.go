package waiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jixiang52002/magenta/internal/kernel/handle"
	"github.com/jixiang52002/magenta/internal/kernel/object"
	"github.com/jixiang52002/magenta/internal/kernel/status"
)

// testObject is a waitable dispatcher whose signal state the tests
// drive directly.
type testObject struct {
	object.Base
	tracker *object.StateTracker
}

func newTestObject(initial object.SignalsState) *testObject {
	return &testObject{
		Base:    object.NewBase(),
		tracker: object.NewStateTracker(true, initial),
	}
}

func (o *testObject) Type() object.Type                  { return object.TypeEvent }
func (o *testObject) StateTracker() *object.StateTracker { return o.tracker }

func allocHandle(t *testing.T, a *handle.Arena, d object.Dispatcher) *handle.Handle {
	t.Helper()
	h := a.Alloc(d, object.RightRead|object.RightWrite)
	require.NotNil(t, h)
	return h
}

// TestObserverSatisfied verifies an already-satisfied watched signal
// fires during Begin and a later transition fires a fresh observer.
func TestObserverSatisfied(t *testing.T) {
	a := handle.NewArena(8)
	o := newTestObject(object.SignalsState{Satisfiable: object.SignalSignaled})
	h := allocHandle(t, a, o)

	var obs StateObserver
	ev := object.NewWaitEvent()
	require.NoError(t, obs.Begin(ev, h, object.SignalSignaled, 5))

	result, _ := ev.Wait(0)
	assert.Equal(t, object.ResultTimedOut, result)

	o.tracker.UpdateSatisfied(0, object.SignalSignaled)
	result, ctx := ev.Wait(time.Second)
	assert.Equal(t, object.ResultSatisfied, result)
	assert.Equal(t, uint64(5), ctx)
	state := obs.End()
	assert.NotZero(t, state.Satisfied&object.SignalSignaled)

	// Pre-satisfied state fires at registration time.
	var obs2 StateObserver
	ev2 := object.NewWaitEvent()
	require.NoError(t, obs2.Begin(ev2, h, object.SignalSignaled, 9))
	result, ctx = ev2.Wait(0)
	assert.Equal(t, object.ResultSatisfied, result)
	assert.Equal(t, uint64(9), ctx)
	obs2.End()
}

// TestObserverUnsatisfiable verifies the wait fails fast once no
// watched signal can ever fire.
func TestObserverUnsatisfiable(t *testing.T) {
	a := handle.NewArena(8)
	o := newTestObject(object.SignalsState{
		Satisfied:   object.SignalWritable,
		Satisfiable: object.SignalWritable | object.SignalReadable,
	})
	h := allocHandle(t, a, o)

	var obs StateObserver
	ev := object.NewWaitEvent()
	require.NoError(t, obs.Begin(ev, h, object.SignalReadable, 0))

	o.tracker.UpdateState(0, 0, object.SignalReadable, 0)
	result, _ := ev.Wait(time.Second)
	assert.Equal(t, object.ResultUnsatisfiable, result)
	obs.End()
}

// TestObserverCancelled verifies closing the waited-on handle wakes the
// waiter with cancellation while leaving End safe to call.
func TestObserverCancelled(t *testing.T) {
	a := handle.NewArena(8)
	o := newTestObject(object.SignalsState{Satisfiable: object.SignalSignaled})
	h := allocHandle(t, a, o)
	other := allocHandle(t, a, o)

	var obs StateObserver
	ev := object.NewWaitEvent()
	require.NoError(t, obs.Begin(ev, h, object.SignalSignaled, 3))

	// Cancelling a different handle to the same object is not our wait.
	o.tracker.Cancel(other)
	result, _ := ev.Wait(0)
	assert.Equal(t, object.ResultTimedOut, result)

	o.tracker.Cancel(h)
	result, ctx := ev.Wait(time.Second)
	assert.Equal(t, object.ResultCancelled, result)
	assert.Equal(t, uint64(3), ctx)
	obs.End()
}

// TestObserverRejectsNonWaitable verifies Begin fails for objects with
// no usable tracker.
func TestObserverRejectsNonWaitable(t *testing.T) {
	a := handle.NewArena(8)
	ws, _ := NewWaitSet()
	h := allocHandle(t, a, ws)

	var obs StateObserver
	err := obs.Begin(object.NewWaitEvent(), h, object.SignalSignaled, 0)
	assert.ErrorIs(t, err, status.ErrNotSupported)
}

// TestPortQueueOrder verifies FIFO delivery and poll timeout.
func TestPortQueueOrder(t *testing.T) {
	p, rights := NewPort()
	assert.Equal(t, DefaultPortRights, rights)

	require.NoError(t, p.Queue(&Packet{Key: 1, Type: PacketTypeUser}))
	require.NoError(t, p.Queue(&Packet{Key: 2, Type: PacketTypeUser}))
	assert.Equal(t, 2, p.Depth())

	pkt, err := p.Wait(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), pkt.Key)
	pkt, err = p.Wait(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), pkt.Key)

	_, err = p.Wait(0)
	assert.ErrorIs(t, err, status.ErrTimedOut)
	_, err = p.Wait(10 * time.Millisecond)
	assert.ErrorIs(t, err, status.ErrTimedOut)
}

// TestPortWakesBlockedWaiter verifies a parked Wait sees a concurrent
// Queue.
func TestPortWakesBlockedWaiter(t *testing.T) {
	p, _ := NewPort()
	go func() {
		time.Sleep(10 * time.Millisecond)
		p.Queue(&Packet{Key: 77, Type: PacketTypeUser})
	}()

	pkt, err := p.Wait(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(77), pkt.Key)
}

// TestPortZeroHandles verifies the no-clients transition: queued
// packets drop, producers fail, parked waiters wake with handle-closed.
func TestPortZeroHandles(t *testing.T) {
	p, _ := NewPort()
	require.NoError(t, p.Queue(&Packet{Key: 1}))

	done := make(chan error, 1)
	go func() {
		// Drain the one packet, then park.
		if _, err := p.Wait(time.Second); err != nil {
			done <- err
			return
		}
		_, err := p.Wait(5 * time.Second)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	p.OnZeroHandles()

	assert.ErrorIs(t, <-done, status.ErrHandleClosed)
	assert.ErrorIs(t, p.Queue(&Packet{Key: 2}), status.ErrUnavailable)
	assert.Equal(t, 0, p.Depth())
}

// TestPortClientFiltersSignals verifies only subscribed signals
// synthesize packets.
func TestPortClientFiltersSignals(t *testing.T) {
	p, _ := NewPort()
	c := NewPortClient(p, 42, object.SignalReadable)
	defer c.Close()

	c.Signal(object.SignalWritable)
	assert.Equal(t, 0, p.Depth())

	c.Signal(object.SignalReadable | object.SignalPeerClosed)
	pkt, err := p.Wait(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), pkt.Key)
	assert.Equal(t, PacketTypeSignal, pkt.Type)
	assert.Equal(t, object.SignalReadable|object.SignalPeerClosed, pkt.Signals)
}

// TestWaitSetTriggerAndUntrigger exercises the level-triggered
// membership life cycle.
func TestWaitSetTriggerAndUntrigger(t *testing.T) {
	a := handle.NewArena(8)
	ws, rights := NewWaitSet()
	assert.Equal(t, DefaultWaitSetRights, rights)

	o := newTestObject(object.SignalsState{Satisfiable: object.SignalSignaled})
	h := allocHandle(t, a, o)
	require.NoError(t, ws.AddEntry(h, object.SignalSignaled, 100))
	assert.ErrorIs(t, ws.AddEntry(h, object.SignalSignaled, 100), status.ErrAlreadyExists)

	_, _, err := ws.Wait(0, 16)
	assert.ErrorIs(t, err, status.ErrTimedOut)

	o.tracker.UpdateSatisfied(0, object.SignalSignaled)
	results, available, err := ws.Wait(0, 16)
	require.NoError(t, err)
	assert.Equal(t, 1, available)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(100), results[0].Cookie)
	assert.NoError(t, results[0].Status)
	assert.NotZero(t, results[0].State.Satisfied&object.SignalSignaled)

	// The condition going away withdraws the pending trigger.
	o.tracker.UpdateSatisfied(object.SignalSignaled, 0)
	_, _, err = ws.Wait(0, 16)
	assert.ErrorIs(t, err, status.ErrTimedOut)

	require.NoError(t, ws.RemoveEntry(100))
	assert.ErrorIs(t, ws.RemoveEntry(100), status.ErrNotFound)
}

// TestWaitSetReportsUnsatisfiableAndClosed verifies per-entry statuses.
func TestWaitSetReportsUnsatisfiableAndClosed(t *testing.T) {
	a := handle.NewArena(8)
	ws, _ := NewWaitSet()

	dead := newTestObject(object.SignalsState{
		Satisfiable: object.SignalReadable | object.SignalPeerClosed,
	})
	closed := newTestObject(object.SignalsState{Satisfiable: object.SignalSignaled})
	hDead := allocHandle(t, a, dead)
	hClosed := allocHandle(t, a, closed)

	require.NoError(t, ws.AddEntry(hDead, object.SignalReadable, 1))
	require.NoError(t, ws.AddEntry(hClosed, object.SignalSignaled, 2))

	dead.tracker.UpdateState(0, object.SignalPeerClosed, object.SignalReadable, 0)
	closed.tracker.Cancel(hClosed)

	results, available, err := ws.Wait(time.Second, 16)
	require.NoError(t, err)
	assert.Equal(t, 2, available)
	require.Len(t, results, 2)

	byCookie := map[uint64]Result{}
	for _, r := range results {
		byCookie[r.Cookie] = r
	}
	assert.ErrorIs(t, byCookie[1].Status, status.ErrBadState)
	assert.ErrorIs(t, byCookie[2].Status, status.ErrHandleClosed)
}

// TestWaitSetCancelledWhileWaiting verifies closing the set's own
// handle fails a parked Wait within bounded time.
func TestWaitSetCancelledWhileWaiting(t *testing.T) {
	a := handle.NewArena(8)
	ws, _ := NewWaitSet()
	hws := allocHandle(t, a, ws)

	done := make(chan error, 1)
	go func() {
		_, _, err := ws.Wait(5*time.Second, 16)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	a.Delete(hws)

	assert.ErrorIs(t, <-done, status.ErrHandleClosed)
}

// TestWaitSetMaxResults verifies truncation while reporting the full
// pending count.
func TestWaitSetMaxResults(t *testing.T) {
	a := handle.NewArena(8)
	ws, _ := NewWaitSet()

	for i := 0; i < 3; i++ {
		o := newTestObject(object.SignalsState{
			Satisfied:   object.SignalSignaled,
			Satisfiable: object.SignalSignaled,
		})
		require.NoError(t, ws.AddEntry(allocHandle(t, a, o), object.SignalSignaled, uint64(i)))
	}

	results, available, err := ws.Wait(0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, available)
	assert.Len(t, results, 2)
}
