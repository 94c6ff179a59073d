package syscalls

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jixiang52002/magenta/internal/kernel/handle"
	"github.com/jixiang52002/magenta/internal/kernel/object"
	"github.com/jixiang52002/magenta/internal/kernel/status"
	"github.com/jixiang52002/magenta/internal/kernel/task"
)

func newTestSystem(t *testing.T, arenaCapacity int) *System {
	t.Helper()
	return New(Config{Arena: handle.NewArena(arenaCapacity)})
}

func newProc(t *testing.T, s *System, name string) *task.Process {
	t.Helper()
	p, _, err := task.NewProcess(s.registry, s.arena, name, task.BadHandleIgnore, nil)
	require.NoError(t, err)
	return p
}

func waitProcDead(t *testing.T, p *task.Process) {
	t.Helper()
	require.Eventually(t, func() bool { return p.State() == task.StateDead },
		2*time.Second, 5*time.Millisecond)
}

// TestLeakedValueIsUselessElsewhere: a raw handle value copied out of
// one process names nothing in another.
func TestLeakedValueIsUselessElsewhere(t *testing.T) {
	s := newTestSystem(t, 64)
	pa := newProc(t, s, "proc-a")
	pb := newProc(t, s, "proc-b")

	ev, err := s.EventCreate(pa)
	require.NoError(t, err)

	_, err = s.HandleWaitOne(pb, ev, object.SignalSignaled, 0)
	assert.ErrorIs(t, err, status.ErrBadHandle)

	// The rightful owner is untouched.
	require.NoError(t, s.ObjectSignal(pa, ev, 0, object.SignalSignaled))
	state, err := s.HandleWaitOne(pa, ev, object.SignalSignaled, 0)
	require.NoError(t, err)
	assert.NotZero(t, state.Satisfied&object.SignalSignaled)
}

// TestPipePeerCloseObservedByWaiter: closing one endpoint completes a
// peer-closed wait on the survivor with WRITABLE gone for good.
func TestPipePeerCloseObservedByWaiter(t *testing.T) {
	s := newTestSystem(t, 64)
	p := newProc(t, s, "proc")

	v0, v1, err := s.MessagePipeCreate(p, 0)
	require.NoError(t, err)

	done := make(chan object.SignalsState, 1)
	go func() {
		state, werr := s.HandleWaitOne(p, v1, object.SignalPeerClosed, TimeInfinite)
		if werr != nil {
			done <- object.SignalsState{}
			return
		}
		done <- state
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.HandleClose(p, v0))

	state := <-done
	assert.NotZero(t, state.Satisfied&object.SignalPeerClosed)
	assert.Zero(t, state.Satisfied&object.SignalWritable)
	assert.Zero(t, state.Satisfiable&object.SignalWritable)

	err = s.MessagePipeWrite(p, v1, []byte("anyone there"), nil)
	assert.ErrorIs(t, err, status.ErrPeerClosed)
}

// TestTwoPhaseReadSingleConsumer: one queued message feeds exactly one
// of two concurrent readers; the other sees the retryable empty status.
func TestTwoPhaseReadSingleConsumer(t *testing.T) {
	s := newTestSystem(t, 64)
	p := newProc(t, s, "proc")

	v0, v1, err := s.MessagePipeCreate(p, 0)
	require.NoError(t, err)
	require.NoError(t, s.MessagePipeWrite(p, v0, []byte("solo"), nil))

	type outcome struct {
		data []byte
		err  error
	}
	results := make(chan outcome, 2)
	for i := 0; i < 2; i++ {
		go func() {
			data, _, _, _, rerr := s.MessagePipeRead(p, v1, 64, 0, false)
			results <- outcome{data, rerr}
		}()
	}

	var won, lost int
	for i := 0; i < 2; i++ {
		r := <-results
		if r.err == nil {
			won++
			assert.Equal(t, []byte("solo"), r.data)
		} else {
			lost++
			assert.ErrorIs(t, r.err, status.ErrBadState)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)
}

// TestGarbageValueUnderExitPolicy: a wild value fails the syscall and,
// under the exit policy, costs the presenting process its life.
func TestGarbageValueUnderExitPolicy(t *testing.T) {
	s := New(Config{Arena: handle.NewArena(64), Policy: task.BadHandleExit})
	p, _, err := task.NewProcess(s.registry, s.arena, "strict", task.BadHandleExit, nil)
	require.NoError(t, err)

	err = s.HandleClose(p, 0xFFFFFFFF)
	assert.ErrorIs(t, err, status.ErrBadHandle)

	waitProcDead(t, p)
	assert.Equal(t, task.ExitCodeBadHandle, p.ReturnCode())
}

// TestArenaExhaustionSurfacesNoMemory: with the global table full the
// next creation fails with no-memory and every earlier handle still
// works.
func TestArenaExhaustionSurfacesNoMemory(t *testing.T) {
	const capacity = 8
	s := newTestSystem(t, capacity)
	p := newProc(t, s, "greedy")

	values := make([]handle.Value, 0, capacity)
	for i := 0; i < capacity; i++ {
		v, err := s.EventCreate(p)
		require.NoError(t, err)
		values = append(values, v)
	}

	_, err := s.EventCreate(p)
	assert.ErrorIs(t, err, status.ErrNoMemory)
	_, err = s.HandleDuplicate(p, values[0], object.RightSameRights)
	assert.ErrorIs(t, err, status.ErrNoMemory)

	for _, v := range values {
		info, gerr := s.ObjectGetInfoHandleBasic(p, v)
		require.NoError(t, gerr)
		assert.Equal(t, object.TypeEvent, info.Type)
	}

	// Freeing one slot unblocks creation.
	require.NoError(t, s.HandleClose(p, values[0]))
	_, err = s.EventCreate(p)
	assert.NoError(t, err)
}

// TestDuplicateHandleInOneMessageRejected: naming the same handle twice
// in one write fails atomically; nothing is transferred or destroyed.
func TestDuplicateHandleInOneMessageRejected(t *testing.T) {
	s := newTestSystem(t, 64)
	p := newProc(t, s, "proc")

	v0, v1, err := s.MessagePipeCreate(p, 0)
	require.NoError(t, err)
	g, err := s.EventCreate(p)
	require.NoError(t, err)

	err = s.MessagePipeWrite(p, v0, nil, []handle.Value{g, g})
	assert.ErrorIs(t, err, status.ErrInvalidArgs)

	// The pipe and the named handle are all still valid and owned here.
	assert.NoError(t, s.ObjectGetInfoHandleValid(p, v0))
	assert.NoError(t, s.ObjectGetInfoHandleValid(p, v1))
	assert.NoError(t, s.ObjectGetInfoHandleValid(p, g))
	require.NoError(t, s.ObjectSignal(p, g, 0, object.SignalSignaled))
}
