package object

import "sync"

// StateObserver receives signal-state callbacks from a StateTracker.
// All three methods run with the tracker lock held; implementations
// must only take locks that sit below per-object source locks in the
// kernel lock hierarchy (wait-set mutexes, port queue locks).
type StateObserver interface {
	// OnInitialize sees the state current at registration, so a
	// transition that happened-before Begin is never missed.
	OnInitialize(initial SignalsState)

	// OnStateChange is invoked whenever satisfied or satisfiable moved.
	OnStateChange(state SignalsState)

	// OnCancel is invoked when the handle identified by key is closed
	// or transferred away; return true to be unregistered.
	OnCancel(key any) (remove bool)
}

// StateTracker tracks the level-triggered signal state of one waitable
// object and fans state changes out to registered observers.
//
// Invariant: updates never raise a satisfied bit outside the
// satisfiable mask's reach; callers narrow satisfiable and clear
// satisfied together (e.g. peer close clears WRITABLE from both).
type StateTracker struct {
	mu        sync.Mutex
	waitable  bool
	state     SignalsState
	observers []StateObserver
}

// NewStateTracker returns a tracker seeded with initial. Non-waitable
// trackers (wait sets observe their own handle) reject waits but still
// deliver cancellation.
func NewStateTracker(waitable bool, initial SignalsState) *StateTracker {
	return &StateTracker{waitable: waitable, state: initial}
}

// Waitable reports whether wait_* may observe this tracker.
func (t *StateTracker) Waitable() bool { return t.waitable }

// State snapshots the current signal state.
func (t *StateTracker) State() SignalsState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// AddObserver registers obs and immediately delivers the current state
// through OnInitialize, all under one lock so no transition can slip
// between registration and the initial check.
func (t *StateTracker) AddObserver(obs StateObserver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, obs)
	obs.OnInitialize(t.state)
}

// RemoveObserver unregisters obs and returns the final state snapshot.
// Removing an observer that is not registered is a no-op.
func (t *StateTracker) RemoveObserver(obs StateObserver) SignalsState {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, o := range t.observers {
		if o == obs {
			last := len(t.observers) - 1
			t.observers[i] = t.observers[last]
			t.observers[last] = nil
			t.observers = t.observers[:last]
			break
		}
	}
	return t.state
}

// UpdateState clears then sets bits in both masks atomically and, if
// anything changed, notifies every observer.
func (t *StateTracker) UpdateState(satisfiedClear, satisfiedSet, satisfiableClear, satisfiableSet Signals) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.state
	t.state.Satisfied &^= satisfiedClear
	t.state.Satisfied |= satisfiedSet
	t.state.Satisfiable &^= satisfiableClear
	t.state.Satisfiable |= satisfiableSet

	if prev == t.state {
		return
	}
	for _, obs := range t.observers {
		obs.OnStateChange(t.state)
	}
}

// UpdateSatisfied adjusts only the satisfied mask.
func (t *StateTracker) UpdateSatisfied(clearMask, setMask Signals) {
	t.UpdateState(clearMask, setMask, 0, 0)
}

// Cancel wakes and detaches every observer registered under key.
// Called when a handle is closed or transferred while waiters may be
// parked on it; runs synchronously so the closer never races a
// dangling registration.
func (t *StateTracker) Cancel(key any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.observers[:0]
	for _, obs := range t.observers {
		if obs.OnCancel(key) {
			continue
		}
		kept = append(kept, obs)
	}
	for i := len(kept); i < len(t.observers); i++ {
		t.observers[i] = nil
	}
	t.observers = kept
}
