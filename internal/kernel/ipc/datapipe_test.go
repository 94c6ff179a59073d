package ipc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jixiang52002/magenta/internal/kernel/object"
	"github.com/jixiang52002/magenta/internal/kernel/status"
)

// TestDataPipeStreaming verifies byte flow, partial writes at the ring
// boundary, and the retryable empty/full statuses.
func TestDataPipeStreaming(t *testing.T) {
	prod, cons, prodRights, consRights := NewDataPipe(8)
	assert.Equal(t, DefaultProducerRights, prodRights)
	assert.Equal(t, DefaultConsumerRights, consRights)

	n, err := prod.Write([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	_, err = prod.Write([]byte("x"))
	assert.ErrorIs(t, err, status.ErrBadState)

	buf := make([]byte, 16)
	n, err = cons.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello wo"), buf[:n])

	_, err = cons.Read(buf)
	assert.ErrorIs(t, err, status.ErrBadState)
}

// TestDataPipeSignals tracks readable/writable levels across fill and
// drain.
func TestDataPipeSignals(t *testing.T) {
	prod, cons, _, _ := NewDataPipe(4)

	assert.NotZero(t, prod.StateTracker().State().Satisfied&object.SignalWritable)
	assert.Zero(t, cons.StateTracker().State().Satisfied&object.SignalReadable)

	_, err := prod.Write(bytes.Repeat([]byte{1}, 4))
	require.NoError(t, err)
	assert.Zero(t, prod.StateTracker().State().Satisfied&object.SignalWritable)
	assert.NotZero(t, cons.StateTracker().State().Satisfied&object.SignalReadable)

	buf := make([]byte, 4)
	_, err = cons.Read(buf)
	require.NoError(t, err)
	assert.NotZero(t, prod.StateTracker().State().Satisfied&object.SignalWritable)
	assert.Zero(t, cons.StateTracker().State().Satisfied&object.SignalReadable)
}

// TestDataPipeThresholds verifies the threshold signals assert at the
// configured levels and reject out-of-range settings.
func TestDataPipeThresholds(t *testing.T) {
	prod, cons, _, _ := NewDataPipe(8)

	assert.ErrorIs(t, cons.SetReadThreshold(9), status.ErrOutOfRange)
	assert.ErrorIs(t, prod.SetWriteThreshold(-1), status.ErrOutOfRange)

	require.NoError(t, cons.SetReadThreshold(4))
	assert.Equal(t, 4, cons.ReadThreshold())

	_, err := prod.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Zero(t, cons.StateTracker().State().Satisfied&object.SignalReadThreshold)

	_, err = prod.Write([]byte{4})
	require.NoError(t, err)
	assert.NotZero(t, cons.StateTracker().State().Satisfied&object.SignalReadThreshold)

	require.NoError(t, prod.SetWriteThreshold(6))
	assert.Equal(t, 6, prod.WriteThreshold())
	// Four bytes queued leaves four free, below the threshold of six.
	assert.Zero(t, prod.StateTracker().State().Satisfied&object.SignalWriteThreshold)

	buf := make([]byte, 2)
	_, err = cons.Read(buf)
	require.NoError(t, err)
	assert.NotZero(t, prod.StateTracker().State().Satisfied&object.SignalWriteThreshold)
}

// TestDataPipeProducerClose verifies the consumer can drain buffered
// bytes and then observes peer-closed.
func TestDataPipeProducerClose(t *testing.T) {
	prod, cons, _, _ := NewDataPipe(8)
	_, err := prod.Write([]byte("tail"))
	require.NoError(t, err)

	object.Release(prod)
	st := cons.StateTracker().State()
	assert.NotZero(t, st.Satisfied&object.SignalPeerClosed)
	assert.NotZero(t, st.Satisfiable&object.SignalReadable)

	buf := make([]byte, 8)
	n, err := cons.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("tail"), buf[:n])

	_, err = cons.Read(buf)
	assert.ErrorIs(t, err, status.ErrPeerClosed)
	assert.Zero(t, cons.StateTracker().State().Satisfiable&object.SignalReadable)
}

// TestDataPipeConsumerClose verifies producer writes fail once the read
// end is gone.
func TestDataPipeConsumerClose(t *testing.T) {
	prod, cons, _, _ := NewDataPipe(8)
	object.Release(cons)

	st := prod.StateTracker().State()
	assert.NotZero(t, st.Satisfied&object.SignalPeerClosed)
	assert.Zero(t, st.Satisfiable&object.SignalWritable)

	_, err := prod.Write([]byte{1})
	assert.ErrorIs(t, err, status.ErrPeerClosed)
}
