package object

import "github.com/jixiang52002/magenta/internal/kernel/status"

// DefaultEventRights is the rights mask attached to freshly created
// event handles.
const DefaultEventRights = RightDuplicate | RightTransfer | RightRead | RightWrite

// Event is the simplest waitable object: a bag of user-controlled
// signal bits flipped through object_signal.
type Event struct {
	Base
	tracker *StateTracker
}

// NewEvent creates an event with no signals satisfied and all user
// signals satisfiable.
func NewEvent() (*Event, Rights) {
	e := &Event{
		Base: NewBase(),
		tracker: NewStateTracker(true, SignalsState{
			Satisfied:   SignalNone,
			Satisfiable: SignalSignaled | SignalUserAll,
		}),
	}
	return e, DefaultEventRights
}

func (e *Event) Type() Type                  { return TypeEvent }
func (e *Event) StateTracker() *StateTracker { return e.tracker }

// UserSignal flips user signal bits; masks outside SignalUserAll are
// rejected.
func (e *Event) UserSignal(clearMask, setMask Signals) error {
	if clearMask&^SignalUserAll != 0 || setMask&^SignalUserAll != 0 {
		return status.ErrInvalidArgs
	}
	e.tracker.UpdateSatisfied(clearMask, setMask)
	return nil
}
