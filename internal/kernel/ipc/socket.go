package ipc

import (
	"sync"

	"github.com/jixiang52002/magenta/internal/kernel/object"
	"github.com/jixiang52002/magenta/internal/kernel/status"
)

// DefaultSocketRights is the rights mask for fresh socket handles.
const DefaultSocketRights = object.RightTransfer | object.RightDuplicate |
	object.RightRead | object.RightWrite

// DefaultSocketCapacity is the per-direction buffer size.
const DefaultSocketCapacity = 64 * 1024

// socketCore is the shared state of a socket pair: one inbound ring
// per side under a single lock.
type socketCore struct {
	mu       sync.Mutex
	rings    [2]*ring
	alive    [2]bool
	trackers [2]*object.StateTracker
}

// Socket is one endpoint of a bidirectional byte-stream pair.
type Socket struct {
	object.Base
	side     int
	core     *socketCore
	peerKoid object.Koid
}

// NewSocketPair creates two connected socket endpoints with
// per-direction buffers of the given capacity.
func NewSocketPair(capacity int) (*Socket, *Socket, object.Rights) {
	if capacity <= 0 {
		capacity = DefaultSocketCapacity
	}
	core := &socketCore{}
	for i := range core.rings {
		core.rings[i] = newRing(capacity)
		core.alive[i] = true
		core.trackers[i] = object.NewStateTracker(true, object.SignalsState{
			Satisfied:   object.SignalWritable,
			Satisfiable: object.SignalReadable | object.SignalWritable | object.SignalPeerClosed,
		})
	}
	s0 := &Socket{Base: object.NewBase(), side: 0, core: core}
	s1 := &Socket{Base: object.NewBase(), side: 1, core: core}
	s0.peerKoid = s1.Koid()
	s1.peerKoid = s0.Koid()
	return s0, s1, DefaultSocketRights
}

func (s *Socket) Type() object.Type                  { return object.TypeSocket }
func (s *Socket) StateTracker() *object.StateTracker { return s.core.trackers[s.side] }

// PeerKoid identifies the opposite endpoint.
func (s *Socket) PeerKoid() object.Koid { return s.peerKoid }

// Write streams bytes toward the peer, partially when its buffer is
// nearly full. Full is the retryable ErrBadState.
func (s *Socket) Write(data []byte) (int, error) {
	other := s.side ^ 1
	c := s.core
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.alive[other] {
		return 0, status.ErrPeerClosed
	}
	n := c.rings[other].write(data)
	if n == 0 && len(data) > 0 {
		return 0, status.ErrBadState
	}
	c.trackers[other].UpdateSatisfied(0, object.SignalReadable)
	if c.rings[other].free() == 0 {
		c.trackers[s.side].UpdateSatisfied(object.SignalWritable, 0)
	}
	return n, nil
}

// Read drains this endpoint's inbound buffer. Empty with a live peer
// is the retryable ErrBadState; empty and closed is ErrPeerClosed.
func (s *Socket) Read(out []byte) (int, error) {
	other := s.side ^ 1
	c := s.core
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.rings[s.side].read(out)
	if n == 0 && len(out) > 0 {
		if !c.alive[other] {
			return 0, status.ErrPeerClosed
		}
		return 0, status.ErrBadState
	}
	if c.rings[s.side].used() == 0 {
		var satisfiableClear object.Signals
		if !c.alive[other] {
			satisfiableClear = object.SignalReadable
		}
		c.trackers[s.side].UpdateState(object.SignalReadable, 0, satisfiableClear, 0)
	}
	if c.alive[other] {
		c.trackers[other].UpdateSatisfied(0, object.SignalWritable)
	}
	return n, nil
}

// OnLastReference closes this side; the peer keeps draining buffered
// bytes but will never again be writable.
func (s *Socket) OnLastReference() {
	other := s.side ^ 1
	c := s.core
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive[s.side] = false
	c.rings[s.side] = newRing(1)
	if c.alive[other] {
		satisfiableClear := object.SignalWritable
		if c.rings[other].used() == 0 {
			satisfiableClear |= object.SignalReadable
		}
		c.trackers[other].UpdateState(object.SignalWritable, object.SignalPeerClosed,
			satisfiableClear, 0)
	}
}
