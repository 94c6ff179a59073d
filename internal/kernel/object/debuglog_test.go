package object

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jixiang52002/magenta/internal/kernel/status"
)

// TestDebugLogDropsOldest verifies the ring keeps only the newest
// capacity records and sequence numbers stay monotonic.
func TestDebugLogDropsOldest(t *testing.T) {
	d := NewDebugLog(4)
	for i := 0; i < 10; i++ {
		d.Write(1, fmt.Sprintf("record %d", i))
	}

	tail := d.Tail(0)
	require.Len(t, tail, 4)
	assert.Equal(t, "record 6", tail[0].Data)
	assert.Equal(t, "record 9", tail[3].Data)
	assert.Equal(t, tail[0].Seq+3, tail[3].Seq)

	tail = d.Tail(2)
	require.Len(t, tail, 2)
	assert.Equal(t, "record 8", tail[0].Data)
}

// TestLogReaderCursor verifies a readable log handle starts at the
// current end and drains records in order.
func TestLogReaderCursor(t *testing.T) {
	d := NewDebugLog(16)
	d.Write(1, "before attach")

	l, rights := NewLog(d, LogFlagReadable)
	assert.Equal(t, DefaultLogRights, rights)

	_, err := l.Read()
	assert.ErrorIs(t, err, status.ErrBadState)

	d.Write(2, "first")
	d.Write(3, "second")

	st := l.StateTracker().State()
	assert.NotZero(t, st.Satisfied&SignalReadable)

	rec, err := l.Read()
	require.NoError(t, err)
	assert.Equal(t, "first", rec.Data)
	assert.Equal(t, Koid(2), rec.Source)

	rec, err = l.Read()
	require.NoError(t, err)
	assert.Equal(t, "second", rec.Data)

	st = l.StateTracker().State()
	assert.Zero(t, st.Satisfied&SignalReadable)
	_, err = l.Read()
	assert.ErrorIs(t, err, status.ErrBadState)
}

// TestLogLaggedReaderSnapsForward verifies a cursor that fell out of
// the ring resumes at the oldest retained record.
func TestLogLaggedReaderSnapsForward(t *testing.T) {
	d := NewDebugLog(2)
	l, _ := NewLog(d, LogFlagReadable)

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Write(1, fmt.Sprintf("r%d", i)))
	}

	rec, err := l.Read()
	require.NoError(t, err)
	assert.Equal(t, "r3", rec.Data)
}

// TestLogWriteOnly verifies a write-only handle cannot read and
// rejects empty payloads.
func TestLogWriteOnly(t *testing.T) {
	d := NewDebugLog(16)
	l, _ := NewLog(d, 0)

	assert.ErrorIs(t, l.Write(1, ""), status.ErrInvalidArgs)
	require.NoError(t, l.Write(1, "hello"))

	_, err := l.Read()
	assert.ErrorIs(t, err, status.ErrAccessDenied)
}

// TestDebugLogSubscribe verifies live taps see new records and full
// channels drop rather than block.
func TestDebugLogSubscribe(t *testing.T) {
	d := NewDebugLog(16)
	ch := d.Subscribe(1)
	defer d.Unsubscribe(ch)

	d.Write(7, "one")
	d.Write(7, "two") // buffer full, dropped

	rec := <-ch
	assert.Equal(t, "one", rec.Data)
	select {
	case rec = <-ch:
		t.Fatalf("unexpected record %q", rec.Data)
	default:
	}
}
