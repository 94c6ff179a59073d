package task

import (
	"context"
	"sync"

	"github.com/jixiang52002/magenta/internal/kernel/object"
	"github.com/jixiang52002/magenta/internal/kernel/status"
)

// DefaultThreadRights is the rights mask on a fresh thread handle.
const DefaultThreadRights = object.RightDuplicate | object.RightTransfer |
	object.RightRead | object.RightWrite

// EntryFunc is the body a started thread runs. The context is
// cancelled when the thread or its process is killed; entry code
// blocking on kernel waits should still exit promptly because process
// death cancels those too.
type EntryFunc func(ctx context.Context, t *Thread)

// Thread is a goroutine-backed execution context bound to one process
// for its whole life.
type Thread struct {
	object.Base
	name    string
	proc    *Process
	tracker *object.StateTracker

	mu      sync.Mutex
	started bool
	done    bool
	cancel  context.CancelFunc
}

// NewThread creates a thread in proc. It holds a reference to the
// process until it exits, so a process never dies out from under its
// threads. Fails once the process is dying.
func NewThread(proc *Process, name string) (*Thread, object.Rights, error) {
	t := &Thread{
		Base: object.NewBase(),
		name: name,
		proc: proc,
		tracker: object.NewStateTracker(true, object.SignalsState{
			Satisfiable: object.SignalSignaled,
		}),
	}
	object.Retain(proc)
	if err := proc.addThread(t); err != nil {
		object.Release(proc)
		return nil, 0, err
	}
	return t, DefaultThreadRights, nil
}

func (t *Thread) Type() object.Type                  { return object.TypeThread }
func (t *Thread) StateTracker() *object.StateTracker { return t.tracker }

// Name returns the thread name given at creation.
func (t *Thread) Name() string { return t.name }

// Process returns the owning process.
func (t *Thread) Process() *Process { return t.proc }

// Start launches entry on its own goroutine. The first started thread
// moves the process to running.
func (t *Thread) Start(entry EntryFunc) error {
	if entry == nil {
		return status.ErrInvalidArgs
	}
	t.mu.Lock()
	if t.started || t.done {
		t.mu.Unlock()
		return status.ErrBadState
	}
	t.started = true
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.mu.Unlock()

	if err := t.proc.onThreadStart(); err != nil {
		t.exit()
		return err
	}

	go func() {
		defer t.exit()
		entry(ctx, t)
	}()
	return nil
}

// Kill asks the thread to stop. A never-started thread exits
// immediately; a running one exits when its entry observes the
// cancelled context.
func (t *Thread) Kill() {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	if !t.started {
		t.mu.Unlock()
		t.exit()
		return
	}
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// exit runs once per thread: mark dead, signal waiters, detach from
// the process (which may take the process to dead), drop the process
// reference.
func (t *Thread) exit() {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Unlock()

	t.tracker.UpdateSatisfied(0, object.SignalSignaled)
	t.proc.removeThread(t)
	object.Release(t.proc)
}

// Done reports whether the thread has exited.
func (t *Thread) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}
