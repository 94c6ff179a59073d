package task

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jixiang52002/magenta/internal/kernel/handle"
	"github.com/jixiang52002/magenta/internal/kernel/object"
	"github.com/jixiang52002/magenta/internal/kernel/status"
)

// State is the one-way process lifecycle.
type State int32

const (
	StateInitial State = iota
	StateRunning
	StateDying
	StateDead
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateRunning:
		return "running"
	case StateDying:
		return "dying"
	default:
		return "dead"
	}
}

// BadHandlePolicy selects what a process suffers for presenting a
// handle value that does not resolve.
type BadHandlePolicy int

const (
	BadHandleIgnore BadHandlePolicy = iota
	BadHandleLog
	BadHandleExit
)

// Return codes reported for deaths the process did not choose.
const (
	ExitCodeKilled      int32 = -1
	ExitCodeBadHandle   int32 = -2
	ExitCodeNoHandles   int32 = -3
	MaxProcessNameLen         = 32
)

// DefaultProcessRights is the rights mask on a fresh process handle.
const DefaultProcessRights = object.RightDuplicate | object.RightTransfer |
	object.RightRead | object.RightWrite | object.RightGetProperty | object.RightSetProperty

// ExceptionPort receives fatal-condition reports for a process. The
// syscall layer adapts an I/O port behind this. Close releases
// whatever the binding holds; the process calls it after the death
// report, or when the binding is replaced with nil.
type ExceptionPort interface {
	OnProcessDeath(koid object.Koid, retcode int32)
	Close()
}

// Process is the unit of capability isolation: a handle table, an
// address space, a futex context, and the threads running against
// them.
//
// Two locks: mu guards lifecycle state and the thread set, tableMu
// guards the handle table. mu is acquired before tableMu when both
// are needed.
type Process struct {
	object.Base
	name     string
	arena    *handle.Arena
	registry *Registry
	tracker  *object.StateTracker
	futexes  *FutexContext
	aspace   *AddressSpace
	policy   BadHandlePolicy
	logger   *zap.Logger
	badRate  *rate.Limiter

	mu      sync.Mutex
	state   State
	retcode int32
	threads map[object.Koid]*Thread
	excPort ExceptionPort

	tableMu sync.Mutex
	mixer   uint32
	handles map[handle.Value]*handle.Handle
}

// NewProcess creates a process in the initial state, registered with
// reg. The caller owns the returned reference and typically hands it
// straight to the arena.
func NewProcess(reg *Registry, arena *handle.Arena, name string, policy BadHandlePolicy, logger *zap.Logger) (*Process, object.Rights, error) {
	if len(name) > MaxProcessNameLen {
		return nil, 0, status.ErrInvalidArgs
	}
	// The mixer keeps the sign bit and the low tag bits clear so the
	// opaque value transform stays reversible.
	u := uuid.New()
	secret := binary.LittleEndian.Uint32(u[:4])

	p := &Process{
		Base:     object.NewBase(),
		name:     name,
		arena:    arena,
		registry: reg,
		tracker: object.NewStateTracker(true, object.SignalsState{
			Satisfiable: object.SignalSignaled,
		}),
		futexes: newFutexContext(),
		aspace:  NewAddressSpace(),
		policy:  policy,
		badRate: rate.NewLimiter(rate.Every(time.Second), 5),
		state:   StateInitial,
		threads: make(map[object.Koid]*Thread),
		mixer:   (secret << 2) & math.MaxInt32,
		handles: make(map[handle.Value]*handle.Handle),
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p.logger = logger.With(zap.Uint64("process_koid", uint64(p.Koid())), zap.String("process", name))
	reg.add(p)
	return p, DefaultProcessRights, nil
}

func (p *Process) Type() object.Type                  { return object.TypeProcess }
func (p *Process) StateTracker() *object.StateTracker { return p.tracker }

// Name returns the process name given at creation.
func (p *Process) Name() string { return p.name }

// State snapshots the lifecycle state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ReturnCode is meaningful once the process is dying or dead.
func (p *Process) ReturnCode() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retcode
}

// Futexes exposes the per-process futex table.
func (p *Process) Futexes() *FutexContext { return p.futexes }

// AddressSpace exposes the per-process mapping ledger.
func (p *Process) AddressSpace() *AddressSpace { return p.aspace }

// SetExceptionPort binds the death reporter. A second bind replaces
// only if the previous was cleared with nil first.
func (p *Process) SetExceptionPort(ep ExceptionPort) error {
	p.mu.Lock()
	if ep != nil && p.excPort != nil {
		p.mu.Unlock()
		return status.ErrAlreadyBound
	}
	old := p.excPort
	p.excPort = ep
	p.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// setStateLocked enforces the forward-only lifecycle. Leaving dead is
// a kernel bug, not a caller error.
func (p *Process) setStateLocked(next State) {
	if p.state == StateDead {
		panic("task: state transition out of dead")
	}
	if next < p.state {
		panic("task: backward state transition")
	}
	p.state = next
}

// MapHandleToValue computes the opaque userspace value for h in this
// process. The low tag bit distinguishes real values from garbage and
// the mixer makes values from different processes incomparable.
func (p *Process) MapHandleToValue(h *handle.Handle) handle.Value {
	return handle.Value((h.Index()<<2 | 0x1) ^ p.mixer)
}

func (p *Process) valueToIndex(v handle.Value) (uint32, bool) {
	raw := uint32(v) ^ p.mixer
	if raw&0x3 != 0x1 {
		return 0, false
	}
	return raw >> 2, true
}

// AddHandle installs h into the table, recording this process as
// owner, and returns its opaque value.
func (p *Process) AddHandle(h *handle.Handle) handle.Value {
	p.tableMu.Lock()
	defer p.tableMu.Unlock()
	return p.addHandleLocked(h)
}

func (p *Process) addHandleLocked(h *handle.Handle) handle.Value {
	h.SetOwner(p.Koid())
	v := p.MapHandleToValue(h)
	p.handles[v] = h
	return v
}

// getHandleLocked resolves v, re-checking ownership: a handle that
// left this table (close, transfer) never resolves even if the arena
// slot still lives.
func (p *Process) getHandleLocked(v handle.Value) *handle.Handle {
	idx, ok := p.valueToIndex(v)
	if !ok {
		return nil
	}
	h := p.arena.Lookup(idx)
	if h == nil || h.Owner() != p.Koid() {
		return nil
	}
	return h
}

// ValidateHandle reports whether v currently resolves in this table,
// applying the bad-handle policy when it does not.
func (p *Process) ValidateHandle(v handle.Value) error {
	p.tableMu.Lock()
	h := p.getHandleLocked(v)
	p.tableMu.Unlock()
	if h == nil {
		return p.badHandle(v)
	}
	return nil
}

// WithHandleRights resolves v, verifies the handle carries every bit
// of want, and runs fn with the live handle while the table lock is
// held. The handle pointer must not escape fn: once the lock drops a
// concurrent close can recycle the arena slot under it. Blocking
// inside fn is forbidden for the same reason parking never holds the
// table lock.
func (p *Process) WithHandleRights(v handle.Value, want object.Rights, fn func(h *handle.Handle) error) error {
	p.tableMu.Lock()
	h := p.getHandleLocked(v)
	if h == nil {
		p.tableMu.Unlock()
		return p.badHandle(v)
	}
	if !h.Rights().Has(want) {
		p.tableMu.Unlock()
		return status.ErrAccessDenied
	}
	err := fn(h)
	p.tableMu.Unlock()
	return err
}

// GetDispatcherRights resolves v, verifies the handle carries every
// bit of want, and returns the dispatcher together with a snapshot of
// the handle's rights. The dispatcher is returned retained; the caller
// owns one reference and must release it. The handle itself stays in
// the table and may be closed concurrently, which at worst defers the
// object's destruction to the caller's release.
func (p *Process) GetDispatcherRights(v handle.Value, want object.Rights) (object.Dispatcher, object.Rights, error) {
	p.tableMu.Lock()
	h := p.getHandleLocked(v)
	if h == nil {
		p.tableMu.Unlock()
		return nil, 0, p.badHandle(v)
	}
	if !h.Rights().Has(want) {
		p.tableMu.Unlock()
		return nil, 0, status.ErrAccessDenied
	}
	d := h.Dispatcher()
	rights := h.Rights()
	object.Retain(d)
	p.tableMu.Unlock()
	return d, rights, nil
}

// RemoveHandle detaches v from the table and clears its owner. The
// caller now holds the handle, typically to close it or send it in a
// message.
func (p *Process) RemoveHandle(v handle.Value) (*handle.Handle, error) {
	p.tableMu.Lock()
	h := p.getHandleLocked(v)
	if h != nil {
		delete(p.handles, v)
		h.SetOwner(0)
	}
	p.tableMu.Unlock()
	if h == nil {
		return nil, p.badHandle(v)
	}
	return h, nil
}

// UndoRemove restores a handle taken with RemoveHandle, for unwinding
// a failed transfer. The value is unchanged since the arena slot never
// moved.
func (p *Process) UndoRemove(h *handle.Handle) handle.Value {
	return p.AddHandle(h)
}

// RemoveHandles detaches a batch atomically: either every value
// resolves and all are removed, or none are and the first bad value's
// error is returned.
func (p *Process) RemoveHandles(values []handle.Value) ([]*handle.Handle, error) {
	out := make([]*handle.Handle, 0, len(values))
	p.tableMu.Lock()
	for _, v := range values {
		h := p.getHandleLocked(v)
		if h == nil {
			for _, prev := range out {
				p.addHandleLocked(prev)
			}
			p.tableMu.Unlock()
			return nil, p.badHandle(v)
		}
		delete(p.handles, v)
		h.SetOwner(0)
		out = append(out, h)
	}
	p.tableMu.Unlock()
	return out, nil
}

// ForEachHandle visits every table entry until fn returns false.
func (p *Process) ForEachHandle(fn func(v handle.Value, h *handle.Handle) bool) {
	p.tableMu.Lock()
	defer p.tableMu.Unlock()
	for v, h := range p.handles {
		if !fn(v, h) {
			return
		}
	}
}

// HandleTableSize reports the number of table entries.
func (p *Process) HandleTableSize() int {
	p.tableMu.Lock()
	defer p.tableMu.Unlock()
	return len(p.handles)
}

// badHandle applies the configured policy and always returns
// ErrBadHandle. Under the exit policy the process is killed, after
// every lock is dropped.
func (p *Process) badHandle(v handle.Value) error {
	switch p.policy {
	case BadHandleLog:
		if p.badRate.Allow() {
			p.logger.Warn("bad handle value presented", zap.Uint32("value", uint32(v)))
		}
	case BadHandleExit:
		p.logger.Error("bad handle value, killing process", zap.Uint32("value", uint32(v)))
		p.Kill(ExitCodeBadHandle)
	}
	return status.ErrBadHandle
}

// addThread registers a created thread. Rejected once dying.
func (p *Process) addThread(t *Thread) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateDying || p.state == StateDead {
		return status.ErrBadState
	}
	p.threads[t.Koid()] = t
	return nil
}

// onThreadStart moves the process to running when its first thread
// starts.
func (p *Process) onThreadStart() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StateInitial:
		p.setStateLocked(StateRunning)
		p.logger.Info("process running")
		return nil
	case StateRunning:
		return nil
	default:
		return status.ErrBadState
	}
}

// removeThread drops an exited thread; the last one out turns the
// lights off.
func (p *Process) removeThread(t *Thread) {
	p.mu.Lock()
	delete(p.threads, t.Koid())
	dead := false
	if len(p.threads) == 0 && p.state != StateDead && p.state != StateInitial {
		if p.state == StateRunning {
			p.setStateLocked(StateDying)
		}
		p.setStateLocked(StateDead)
		dead = true
	}
	p.mu.Unlock()
	if dead {
		p.finishDead()
	}
}

// ThreadCount reports live threads.
func (p *Process) ThreadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.threads)
}

// Kill forces the process toward dead. Futex waiters wake first so no
// thread stays parked through its own teardown; threads are then
// asked to stop and the last to exit completes the transition. A
// threadless process dies on the spot.
func (p *Process) Kill(retcode int32) {
	p.mu.Lock()
	if p.state == StateDying || p.state == StateDead {
		p.mu.Unlock()
		return
	}
	p.retcode = retcode
	p.setStateLocked(StateDying)
	threads := make([]*Thread, 0, len(p.threads))
	for _, t := range p.threads {
		threads = append(threads, t)
	}
	p.mu.Unlock()

	p.logger.Info("process dying", zap.Int32("retcode", retcode))
	p.futexes.WakeAll()

	if len(threads) == 0 {
		p.mu.Lock()
		p.setStateLocked(StateDead)
		p.mu.Unlock()
		p.finishDead()
		return
	}
	for _, t := range threads {
		t.Kill()
	}
}

// Exit is the voluntary flavor of Kill, called from a thread of the
// process itself.
func (p *Process) Exit(retcode int32) { p.Kill(retcode) }

// OnZeroHandles kills the process when the last handle to it closes;
// nothing could ever reap it afterward.
func (p *Process) OnZeroHandles() {
	p.Kill(ExitCodeNoHandles)
}

// finishDead runs exactly once, after the state lock observed the
// transition to dead: unregister, drain the handle table, tear down
// the address space, then tell the world.
func (p *Process) finishDead() {
	p.registry.remove(p)

	p.tableMu.Lock()
	owned := make([]*handle.Handle, 0, len(p.handles))
	for _, h := range p.handles {
		owned = append(owned, h)
	}
	p.handles = make(map[handle.Value]*handle.Handle)
	p.tableMu.Unlock()
	for _, h := range owned {
		p.arena.Delete(h)
	}

	p.aspace.Destroy()

	p.mu.Lock()
	retcode := p.retcode
	ep := p.excPort
	p.excPort = nil
	p.mu.Unlock()

	p.tracker.UpdateSatisfied(0, object.SignalSignaled)
	if ep != nil {
		ep.OnProcessDeath(p.Koid(), retcode)
		ep.Close()
	}
	p.logger.Info("process dead", zap.Int32("retcode", retcode))
}
