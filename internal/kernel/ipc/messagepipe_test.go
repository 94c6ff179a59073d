package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jixiang52002/magenta/internal/kernel/handle"
	"github.com/jixiang52002/magenta/internal/kernel/object"
	"github.com/jixiang52002/magenta/internal/kernel/status"
)

func readAll(t *testing.T, e *Endpoint) *MessagePacket {
	t.Helper()
	_, _, err := e.BeginRead()
	require.NoError(t, err)
	msg, err := e.AcceptRead()
	require.NoError(t, err)
	return msg
}

// TestPipeWriteRead moves a message each direction and checks the
// readable signal follows the queue.
func TestPipeWriteRead(t *testing.T) {
	a := handle.NewArena(16)
	e0, e1, rights := NewMessagePipe(a, 0)
	assert.Equal(t, DefaultPipeRights, rights)
	assert.Equal(t, e1.Koid(), e0.PeerKoid())
	assert.Equal(t, e0.Koid(), e1.PeerKoid())

	require.NoError(t, e0.Write(&MessagePacket{Data: []byte("ping")}))
	assert.NotZero(t, e1.StateTracker().State().Satisfied&object.SignalReadable)
	assert.Zero(t, e0.StateTracker().State().Satisfied&object.SignalReadable)

	msg := readAll(t, e1)
	assert.Equal(t, []byte("ping"), msg.Data)
	assert.Zero(t, e1.StateTracker().State().Satisfied&object.SignalReadable)

	require.NoError(t, e1.Write(&MessagePacket{Data: []byte("pong")}))
	msg = readAll(t, e0)
	assert.Equal(t, []byte("pong"), msg.Data)
}

// TestPipeEmptyReadIsRetryable verifies the empty-with-live-peer
// contract.
func TestPipeEmptyReadIsRetryable(t *testing.T) {
	a := handle.NewArena(16)
	e0, _, _ := NewMessagePipe(a, 0)

	_, _, err := e0.BeginRead()
	assert.ErrorIs(t, err, status.ErrBadState)
	_, err = e0.AcceptRead()
	assert.ErrorIs(t, err, status.ErrBadState)
}

// TestPipeTwoPhaseRace verifies only one consumer claims a message
// peeked by BeginRead; the loser retries.
func TestPipeTwoPhaseRace(t *testing.T) {
	a := handle.NewArena(16)
	e0, e1, _ := NewMessagePipe(a, 0)
	require.NoError(t, e0.Write(&MessagePacket{Data: []byte("once")}))

	nb, nh, err := e1.BeginRead()
	require.NoError(t, err)
	assert.Equal(t, 4, nb)
	assert.Equal(t, 0, nh)

	// First accept wins; the packet is gone for the second.
	msg, err := e1.AcceptRead()
	require.NoError(t, err)
	assert.Equal(t, []byte("once"), msg.Data)
	_, err = e1.AcceptRead()
	assert.ErrorIs(t, err, status.ErrBadState)
}

// TestPipeReadableThroughBeginRead verifies a peeked message still
// counts as readable: BeginRead sizes the head without consuming it,
// and only AcceptRead clears the signal.
func TestPipeReadableThroughBeginRead(t *testing.T) {
	a := handle.NewArena(16)
	e0, e1, _ := NewMessagePipe(a, 0)
	require.NoError(t, e0.Write(&MessagePacket{Data: []byte("hello")}))

	nb, nh, err := e1.BeginRead()
	require.NoError(t, err)
	assert.Equal(t, 5, nb)
	assert.Equal(t, 0, nh)
	assert.NotZero(t, e1.StateTracker().State().Satisfied&object.SignalReadable)

	// Peeking again resolves to the same head message.
	nb, _, err = e1.BeginRead()
	require.NoError(t, err)
	assert.Equal(t, 5, nb)

	msg, err := e1.AcceptRead()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), msg.Data)
	assert.Zero(t, e1.StateTracker().State().Satisfied&object.SignalReadable)
}

// TestPipePeerClose verifies close semantics on the surviving side:
// writes fail with peer-closed, queued messages remain readable, and
// the signal state shows PEER_CLOSED with WRITABLE gone.
func TestPipePeerClose(t *testing.T) {
	a := handle.NewArena(16)
	e0, e1, _ := NewMessagePipe(a, 0)

	require.NoError(t, e0.Write(&MessagePacket{Data: []byte("last words")}))
	object.Release(e0)

	st := e1.StateTracker().State()
	assert.NotZero(t, st.Satisfied&object.SignalPeerClosed)
	assert.Zero(t, st.Satisfied&object.SignalWritable)
	assert.Zero(t, st.Satisfiable&object.SignalWritable)
	assert.NotZero(t, st.Satisfiable&object.SignalReadable)

	err := e1.Write(&MessagePacket{Data: []byte("into the void")})
	assert.ErrorIs(t, err, status.ErrPeerClosed)

	msg := readAll(t, e1)
	assert.Equal(t, []byte("last words"), msg.Data)

	_, _, err = e1.BeginRead()
	assert.ErrorIs(t, err, status.ErrPeerClosed)
	assert.Zero(t, e1.StateTracker().State().Satisfiable&object.SignalReadable)
}

// TestPipeCloseDestroysQueuedHandles verifies handles buffered in an
// endpoint's inbound queue die when that endpoint does.
func TestPipeCloseDestroysQueuedHandles(t *testing.T) {
	a := handle.NewArena(16)
	e0, e1, _ := NewMessagePipe(a, 0)

	ev, evRights := object.NewEvent()
	hv := a.Alloc(ev, evRights)
	require.NotNil(t, hv)
	before := a.Live()

	require.NoError(t, e0.Write(&MessagePacket{Handles: []*handle.Handle{hv}}))
	object.Release(e1)
	assert.Equal(t, before-1, a.Live())

	object.Release(e0)
}

// TestPipeWriteFailureReturnsHandles verifies the failed-write path
// leaves handle ownership with the caller.
func TestPipeWriteFailureReturnsHandles(t *testing.T) {
	a := handle.NewArena(16)
	e0, e1, _ := NewMessagePipe(a, 0)
	object.Release(e1)

	ev, evRights := object.NewEvent()
	hv := a.Alloc(ev, evRights)
	require.NotNil(t, hv)

	msg := &MessagePacket{Handles: []*handle.Handle{hv}}
	assert.ErrorIs(t, e0.Write(msg), status.ErrPeerClosed)
	assert.Nil(t, msg.Handles)
	assert.NotNil(t, a.Lookup(hv.Index()))

	a.Delete(hv)
	object.Release(e0)
}

// TestPipeReplyFlag verifies the reply flag sticks to side 1 only.
func TestPipeReplyFlag(t *testing.T) {
	a := handle.NewArena(16)
	e0, e1, _ := NewMessagePipe(a, FlagReplyPipe)
	assert.False(t, e0.IsReplyPipe())
	assert.True(t, e1.IsReplyPipe())
}
