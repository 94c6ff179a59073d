package waiter

import (
	"container/list"
	"sync"
	"time"

	"github.com/jixiang52002/magenta/internal/kernel/handle"
	"github.com/jixiang52002/magenta/internal/kernel/object"
	"github.com/jixiang52002/magenta/internal/kernel/status"
)

// DefaultWaitSetRights is the rights mask for fresh wait-set handles.
const DefaultWaitSetRights = object.RightRead | object.RightWrite

type entryState int

const (
	entryAddPending entryState = iota
	entryAdded
	entryRemoved
)

// Entry is one (handle, signal-mask, cookie) membership of a wait set.
// It observes the target's state tracker for as long as it is added.
type Entry struct {
	ws      *WaitSet
	watched object.Signals
	cookie  uint64

	// All fields below are guarded by ws.mu. Tracker callbacks take
	// ws.mu while holding the tracker lock; wait-set operations that
	// call into trackers do so with ws.mu released.
	state     entryState
	handle    *handle.Handle
	disp      object.Dispatcher
	signals   object.SignalsState
	triggered bool
	elem      *list.Element
}

// OnInitialize implements object.StateObserver.
func (e *Entry) OnInitialize(initial object.SignalsState) {
	e.ws.mu.Lock()
	defer e.ws.mu.Unlock()
	e.state = entryAdded
	e.signals = initial
	if e.watched&initial.Satisfied != 0 || e.watched&initial.Satisfiable == 0 {
		e.triggerLocked()
	}
}

// OnStateChange implements object.StateObserver.
func (e *Entry) OnStateChange(state object.SignalsState) {
	e.ws.mu.Lock()
	defer e.ws.mu.Unlock()
	if e.state == entryRemoved {
		return
	}
	e.signals = state
	if e.watched&state.Satisfied != 0 || e.watched&state.Satisfiable == 0 {
		if !e.triggered {
			e.triggerLocked()
		}
		return
	}
	if e.triggered {
		// Level-triggered: the condition went away, so the pending
		// result is withdrawn.
		e.triggered = false
		e.ws.triggeredList.Remove(e.elem)
		e.elem = nil
	}
}

// OnCancel implements object.StateObserver. The entry stays in the set
// (reported as cancelled by Wait) but detaches from the tracker.
func (e *Entry) OnCancel(key any) bool {
	e.ws.mu.Lock()
	defer e.ws.mu.Unlock()
	if e.state == entryRemoved {
		return false
	}
	if key != any(e.handle) {
		return false
	}
	e.handle = nil
	if e.disp != nil {
		// Never the final release: the canceller holds its own
		// reference across Cancel.
		object.Release(e.disp)
		e.disp = nil
	}
	if !e.triggered {
		e.triggerLocked()
	}
	return true
}

func (e *Entry) triggerLocked() {
	e.triggered = true
	wasEmpty := e.ws.triggeredList.Len() == 0
	e.elem = e.ws.triggeredList.PushBack(e)
	if wasEmpty {
		e.ws.cond.Broadcast()
	}
}

// WaitSet is a persistent collection of watched (handle, mask, cookie)
// entries supporting repeated batched waits without re-registration.
// It is itself a dispatcher; its tracker exists only so that closing a
// wait-set handle cancels in-progress waits.
type WaitSet struct {
	object.Base
	tracker *object.StateTracker

	mu            sync.Mutex
	cond          *sync.Cond
	entries       map[uint64]*Entry
	triggeredList *list.List // of *Entry, trigger order
	waiters       int
	cancelled     bool
}

// Result is one satisfied/unsatisfiable/cancelled membership reported
// by Wait.
type Result struct {
	Cookie uint64
	Status error
	State  object.SignalsState
}

// NewWaitSet creates an empty wait set observing its own handles for
// cancellation.
func NewWaitSet() (*WaitSet, object.Rights) {
	ws := &WaitSet{
		Base:          object.NewBase(),
		tracker:       object.NewStateTracker(false, object.SignalsState{}),
		entries:       make(map[uint64]*Entry),
		triggeredList: list.New(),
	}
	ws.cond = sync.NewCond(&ws.mu)
	ws.tracker.AddObserver(ws)
	return ws, DefaultWaitSetRights
}

func (ws *WaitSet) Type() object.Type                  { return object.TypeWaitSet }
func (ws *WaitSet) StateTracker() *object.StateTracker { return ws.tracker }

// OnInitialize implements object.StateObserver for the set's own
// tracker; nothing to do.
func (ws *WaitSet) OnInitialize(object.SignalsState) {}

// OnStateChange implements object.StateObserver; the set's own tracker
// never changes state.
func (ws *WaitSet) OnStateChange(object.SignalsState) {}

// OnCancel marks the set cancelled when any handle to it is closed,
// waking every parked Wait.
func (ws *WaitSet) OnCancel(any) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.cancelled = true
	ws.cond.Broadcast()
	return false
}

// AddEntry registers h's object under cookie with the given mask.
// ErrNotSupported for non-waitable targets; ErrAlreadyExists for a
// duplicate cookie.
func (ws *WaitSet) AddEntry(h *handle.Handle, watched object.Signals, cookie uint64) error {
	d := h.Dispatcher()
	tracker := d.StateTracker()
	if tracker == nil || !tracker.Waitable() {
		return status.ErrNotSupported
	}

	e := &Entry{ws: ws, watched: watched, cookie: cookie}
	ws.mu.Lock()
	if _, exists := ws.entries[cookie]; exists {
		ws.mu.Unlock()
		return status.ErrAlreadyExists
	}
	ws.entries[cookie] = e
	e.state = entryAddPending
	e.handle = h
	e.disp = d
	object.Retain(d)
	ws.mu.Unlock()

	// Registration happens outside ws.mu: trackers call back into the
	// set and must never find ws.mu held by their caller.
	tracker.AddObserver(e)
	return nil
}

// RemoveEntry detaches the membership registered under cookie.
func (ws *WaitSet) RemoveEntry(cookie uint64) error {
	ws.mu.Lock()
	e, ok := ws.entries[cookie]
	if !ok {
		ws.mu.Unlock()
		return status.ErrNotFound
	}
	delete(ws.entries, cookie)
	if e.triggered {
		ws.triggeredList.Remove(e.elem)
		e.elem = nil
		e.triggered = false
	}
	if e.state == entryAddPending {
		// A concurrent AddEntry is still registering this entry; put
		// it back and let that add complete.
		ws.entries[cookie] = e
		ws.mu.Unlock()
		return nil
	}
	e.state = entryRemoved
	d := e.disp
	e.disp = nil
	ws.mu.Unlock()

	if d != nil {
		d.StateTracker().RemoveObserver(e)
		object.Release(d)
	}
	return nil
}

// Wait blocks until at least one entry is triggered, the set's handle
// is closed, or timeout elapses (negative blocks forever, zero polls).
// At most maxResults entries are returned; available reports how many
// were pending in total.
func (ws *WaitSet) Wait(timeout time.Duration, maxResults int) (results []Result, available int, err error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.triggeredList.Len() == 0 && !ws.cancelled && timeout != 0 {
		timedOut := false
		var timer *time.Timer
		if timeout > 0 {
			timer = time.AfterFunc(timeout, func() {
				ws.mu.Lock()
				timedOut = true
				ws.cond.Broadcast()
				ws.mu.Unlock()
			})
			defer timer.Stop()
		}
		ws.waiters++
		for ws.triggeredList.Len() == 0 && !ws.cancelled && !timedOut {
			ws.cond.Wait()
		}
		ws.waiters--
	}

	// Prefer results over timeout, and cancellation over everything.
	if ws.cancelled {
		return nil, 0, status.ErrHandleClosed
	}
	available = ws.triggeredList.Len()
	if available == 0 {
		return nil, 0, status.ErrTimedOut
	}

	n := available
	if maxResults < n {
		n = maxResults
	}
	results = make([]Result, 0, n)
	for el := ws.triggeredList.Front(); el != nil && len(results) < n; el = el.Next() {
		e := el.Value.(*Entry)
		r := Result{Cookie: e.cookie}
		switch {
		case e.handle == nil:
			r.Status = status.ErrHandleClosed
		case e.signals.Satisfied&e.watched != 0:
			r.Status = nil
			r.State = e.signals
		default:
			r.Status = status.ErrBadState
			r.State = e.signals
		}
		results = append(results, r)
	}
	return results, available, nil
}

// OnLastReference detaches every remaining entry from its tracker.
func (ws *WaitSet) OnLastReference() {
	ws.mu.Lock()
	detach := make([]*Entry, 0, len(ws.entries))
	for _, e := range ws.entries {
		e.state = entryRemoved
		if e.disp != nil {
			detach = append(detach, e)
		}
	}
	ws.entries = make(map[uint64]*Entry)
	ws.triggeredList.Init()
	ws.mu.Unlock()

	for _, e := range detach {
		e.disp.StateTracker().RemoveObserver(e)
		object.Release(e.disp)
		e.disp = nil
	}
	ws.tracker.RemoveObserver(ws)
}
