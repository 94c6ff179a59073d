package waiter

import (
	"github.com/jixiang52002/magenta/internal/kernel/handle"
	"github.com/jixiang52002/magenta/internal/kernel/object"
	"github.com/jixiang52002/magenta/internal/kernel/status"
)

// StateObserver is the begin/end observer backing a single slot of a
// blocking wait. Begin registers on the target's tracker under the
// caller's handle-table lock; End must always follow, outside that
// lock, regardless of the wait outcome.
type StateObserver struct {
	event   *object.WaitEvent
	handle  *handle.Handle
	watched object.Signals
	context uint64

	// Non-nil only between Begin and End; holds the dispatcher alive
	// while registered.
	disp object.Dispatcher
}

// Begin registers the observer for the watched signals of h's object.
// The current state is checked during registration, so a transition
// that happened before Begin is still observed. Fails with
// ErrNotSupported for non-waitable objects.
func (o *StateObserver) Begin(event *object.WaitEvent, h *handle.Handle, watched object.Signals, context uint64) error {
	if o.disp != nil {
		panic("waiter: observer reused without End")
	}
	d := h.Dispatcher()
	tracker := d.StateTracker()
	if tracker == nil || !tracker.Waitable() {
		return status.ErrNotSupported
	}
	o.event = event
	o.handle = h
	o.watched = watched
	o.context = context
	o.disp = d
	object.Retain(d)
	tracker.AddObserver(o)
	return nil
}

// End unregisters and returns the final signal-state snapshot, which
// callers report even on timeout.
func (o *StateObserver) End() object.SignalsState {
	if o.disp == nil {
		panic("waiter: End without Begin")
	}
	state := o.disp.StateTracker().RemoveObserver(o)
	d := o.disp
	o.disp = nil
	object.Release(d)
	return state
}

// OnInitialize implements object.StateObserver.
func (o *StateObserver) OnInitialize(initial object.SignalsState) {
	o.maybeSignal(initial)
}

// OnStateChange implements object.StateObserver.
func (o *StateObserver) OnStateChange(state object.SignalsState) {
	o.maybeSignal(state)
}

// OnCancel implements object.StateObserver. The observer stays
// registered (End still runs); only the event fires.
func (o *StateObserver) OnCancel(key any) bool {
	if key == any(o.handle) {
		o.event.Signal(object.ResultCancelled, o.context)
	}
	return false
}

func (o *StateObserver) maybeSignal(state object.SignalsState) {
	if state.Satisfied&o.watched != 0 {
		o.event.Signal(object.ResultSatisfied, o.context)
		return
	}
	if state.Satisfiable&o.watched == 0 {
		// Nothing watched can ever fire; fail the wait immediately
		// instead of parking forever.
		o.event.Signal(object.ResultUnsatisfiable, o.context)
	}
}
