package task

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jixiang52002/magenta/internal/kernel/status"
)

// TestFutexValueMismatch verifies the compare-and-park gate.
func TestFutexValueMismatch(t *testing.T) {
	fc := newFutexContext()
	word := int32(5)
	err := fc.Wait(&word, 6, time.Second)
	assert.ErrorIs(t, err, status.ErrBadState)
}

// TestFutexWakeReleasesOldestFirst parks several waiters and wakes a
// subset.
func TestFutexWakeReleasesOldestFirst(t *testing.T) {
	fc := newFutexContext()
	word := int32(0)

	const waiters = 3
	errs := make(chan error, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- fc.Wait(&word, 0, 5*time.Second)
		}()
	}

	// Give the waiters time to park.
	require.Eventually(t, func() bool {
		fc.mu.Lock()
		defer fc.mu.Unlock()
		return len(fc.parked[&word]) == waiters
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, fc.Wake(&word, 2))
	assert.Equal(t, 1, fc.Wake(&word, 10))
	assert.Equal(t, 0, fc.Wake(&word, 1))

	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

// TestFutexTimeoutAbandonsSlot verifies a timed-out waiter does not
// burn a later wake.
func TestFutexTimeoutAbandonsSlot(t *testing.T) {
	fc := newFutexContext()
	word := int32(0)

	err := fc.Wait(&word, 0, 10*time.Millisecond)
	assert.ErrorIs(t, err, status.ErrTimedOut)
	assert.Equal(t, 0, fc.Wake(&word, 1))
}

// TestFutexRequeue moves parked waiters to a second word.
func TestFutexRequeue(t *testing.T) {
	fc := newFutexContext()
	a, b := int32(0), int32(0)

	_, err := fc.Requeue(&a, 1, &a, 1)
	assert.ErrorIs(t, err, status.ErrInvalidArgs)

	const waiters = 3
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fc.Wait(&a, 0, 5*time.Second)
		}()
	}
	require.Eventually(t, func() bool {
		fc.mu.Lock()
		defer fc.mu.Unlock()
		return len(fc.parked[&a]) == waiters
	}, 2*time.Second, 5*time.Millisecond)

	released, err := fc.Requeue(&a, 1, &b, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	assert.Equal(t, 0, fc.Wake(&a, 10))
	assert.Equal(t, 2, fc.Wake(&b, 10))
	wg.Wait()
}

// TestFutexWakeAllCancels verifies teardown wakes everyone with
// cancellation and rejects new waits.
func TestFutexWakeAllCancels(t *testing.T) {
	fc := newFutexContext()
	word := int32(0)

	done := make(chan error, 1)
	go func() {
		done <- fc.Wait(&word, 0, 5*time.Second)
	}()
	require.Eventually(t, func() bool {
		fc.mu.Lock()
		defer fc.mu.Unlock()
		return len(fc.parked[&word]) == 1
	}, 2*time.Second, 5*time.Millisecond)

	fc.WakeAll()
	assert.ErrorIs(t, <-done, status.ErrHandleClosed)
	assert.ErrorIs(t, fc.Wait(&word, 0, 0), status.ErrBadState)
}
