package object

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jixiang52002/magenta/internal/kernel/status"
)

// TestVmObjectReadWriteRoundTrip covers a write straddling a page
// boundary read back intact.
func TestVmObjectReadWriteRoundTrip(t *testing.T) {
	v, rights, err := NewVmObject(3 * PageSize)
	require.NoError(t, err)
	assert.Equal(t, DefaultVmObjectRights, rights)

	data := bytes.Repeat([]byte{0xAB}, PageSize+100)
	n, err := v.Write(data, PageSize-50)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	buf := make([]byte, len(data))
	n, err = v.Read(buf, PageSize-50)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, buf)
}

// TestVmObjectUncommittedReadsZero verifies sparse pages read as zero.
func TestVmObjectUncommittedReadsZero(t *testing.T) {
	v, _, err := NewVmObject(2 * PageSize)
	require.NoError(t, err)

	buf := []byte{1, 2, 3, 4}
	n, err := v.Read(buf, PageSize)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{0, 0, 0, 0}, buf)
}

// TestVmObjectShortTransfersAtEnd verifies reads and writes truncate at
// the object size and out-of-bounds offsets fail.
func TestVmObjectShortTransfersAtEnd(t *testing.T) {
	v, _, err := NewVmObject(100)
	require.NoError(t, err)

	n, err := v.Write(make([]byte, 64), 90)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	n, err = v.Read(make([]byte, 64), 90)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	_, err = v.Read(make([]byte, 1), 100)
	assert.ErrorIs(t, err, status.ErrOutOfRange)
	_, err = v.Write([]byte{1}, 200)
	assert.ErrorIs(t, err, status.ErrOutOfRange)
}

// TestVmObjectResizeDiscardsTail verifies shrink drops data past the
// new size even after a later grow.
func TestVmObjectResizeDiscardsTail(t *testing.T) {
	v, _, err := NewVmObject(2 * PageSize)
	require.NoError(t, err)

	_, err = v.Write(bytes.Repeat([]byte{0xFF}, PageSize), PageSize)
	require.NoError(t, err)

	require.NoError(t, v.SetSize(PageSize))
	assert.Equal(t, uint64(PageSize), v.Size())
	require.NoError(t, v.SetSize(2*PageSize))

	buf := make([]byte, 16)
	n, err := v.Read(buf, PageSize)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Equal(t, make([]byte, 16), buf)
}
