package ipc

import (
	"sync"

	"github.com/jixiang52002/magenta/internal/kernel/handle"
	"github.com/jixiang52002/magenta/internal/kernel/object"
	"github.com/jixiang52002/magenta/internal/kernel/status"
	"github.com/jixiang52002/magenta/internal/kernel/waiter"
)

// DefaultPipeRights is the rights mask for fresh pipe endpoint handles.
const DefaultPipeRights = object.RightTransfer | object.RightRead | object.RightWrite

// FlagReplyPipe marks a reply pipe: the one flavor allowed (and
// required, as the last array element) to send its own handle in a
// written message.
const FlagReplyPipe uint32 = 1 << 0

// MessagePacket is one queued message: a byte payload plus the raw
// handles being transferred with it.
type MessagePacket struct {
	Data    []byte
	Handles []*handle.Handle
}

// ReturnHandles disowns the handle array without destroying it, for
// the failed-write path where the caller restores the handles to the
// sender's table.
func (p *MessagePacket) ReturnHandles() {
	p.Handles = nil
}

func (p *MessagePacket) discard(arena *handle.Arena) {
	for _, h := range p.Handles {
		arena.Delete(h)
	}
	p.Handles = nil
}

type pipeSide struct {
	queue []*MessagePacket
	alive bool
	port  *waiter.PortClient

	// peeked marks the head packet claimed by a BeginRead. The packet
	// stays in the queue, and READABLE stays asserted, until a matching
	// accept dequeues it.
	peeked *MessagePacket
}

// messagePipe is the shared core of an endpoint pair: two inbound
// FIFOs, two trackers, one lock.
type messagePipe struct {
	arena *handle.Arena

	mu       sync.Mutex
	sides    [2]pipeSide
	trackers [2]*object.StateTracker
}

func newMessagePipe(arena *handle.Arena) *messagePipe {
	p := &messagePipe{arena: arena}
	for i := range p.sides {
		p.sides[i].alive = true
		p.trackers[i] = object.NewStateTracker(true, object.SignalsState{
			Satisfied:   object.SignalWritable,
			Satisfiable: object.SignalReadable | object.SignalWritable | object.SignalPeerClosed,
		})
	}
	return p
}

// write enqueues onto the peer of from. Peer liveness is tracked with
// an explicit flag, not queue presence.
func (p *messagePipe) write(from int, msg *MessagePacket) error {
	other := from ^ 1

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.sides[other].alive {
		// The caller restores the handles to the sender's table.
		msg.ReturnHandles()
		return status.ErrPeerClosed
	}
	p.sides[other].queue = append(p.sides[other].queue, msg)
	p.trackers[other].UpdateSatisfied(0, object.SignalReadable)
	if pc := p.sides[other].port; pc != nil {
		pc.Signal(object.SignalReadable)
	}
	return nil
}

// peek records the head of side's inbound FIFO as claimed and reports
// its sizes, without dequeueing: the message still counts toward the
// readable state until accepted. Empty with a live peer is the
// retryable ErrBadState; empty with a dead peer is ErrPeerClosed.
func (p *messagePipe) peek(side int) (numBytes, numHandles int, err error) {
	other := side ^ 1

	p.mu.Lock()
	defer p.mu.Unlock()

	q := p.sides[side].queue
	if len(q) == 0 {
		if !p.sides[other].alive {
			return 0, 0, status.ErrPeerClosed
		}
		return 0, 0, status.ErrBadState
	}
	msg := q[0]
	p.sides[side].peeked = msg
	return len(msg.Data), len(msg.Handles), nil
}

// accept dequeues the packet claimed by the last peek, provided it is
// still the head: losing the claim to a concurrent accept is the
// retryable ErrBadState.
func (p *messagePipe) accept(side int) (*MessagePacket, error) {
	other := side ^ 1

	p.mu.Lock()
	defer p.mu.Unlock()

	q := p.sides[side].queue
	msg := p.sides[side].peeked
	if msg == nil || len(q) == 0 || q[0] != msg {
		return nil, status.ErrBadState
	}
	p.sides[side].peeked = nil
	p.sides[side].queue = q[1:]
	if len(p.sides[side].queue) == 0 {
		var satisfiableClear object.Signals
		if !p.sides[other].alive {
			satisfiableClear = object.SignalReadable
		}
		p.trackers[side].UpdateState(object.SignalReadable, 0, satisfiableClear, 0)
	}
	return msg, nil
}

// onEndpointDestroyed marks side dead, destroys its undelivered
// inbound messages, and tells the surviving peer it will never again
// be writable.
func (p *messagePipe) onEndpointDestroyed(side int) {
	other := side ^ 1

	p.mu.Lock()
	dead := p.sides[side].queue
	p.sides[side].queue = nil
	p.sides[side].peeked = nil
	p.sides[side].alive = false
	if pc := p.sides[side].port; pc != nil {
		pc.Close()
		p.sides[side].port = nil
	}
	if p.sides[other].alive {
		satisfiableClear := object.SignalWritable
		if len(p.sides[other].queue) == 0 {
			satisfiableClear |= object.SignalReadable
		}
		p.trackers[other].UpdateState(object.SignalWritable, object.SignalPeerClosed, satisfiableClear, 0)
		if pc := p.sides[other].port; pc != nil {
			pc.Signal(object.SignalPeerClosed)
		}
	}
	p.mu.Unlock()

	// Undelivered handles die with their packets, outside the pipe
	// lock: arena deletion releases references.
	for _, msg := range dead {
		msg.discard(p.arena)
	}
}

func (p *messagePipe) bindPort(side int, pc *waiter.PortClient) error {
	if pc.Signals()&^(object.SignalReadable|object.SignalPeerClosed) != 0 {
		return status.ErrInvalidArgs
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sides[side].port != nil {
		return status.ErrAlreadyBound
	}
	p.sides[side].port = pc
	return nil
}

// Endpoint is one side of a message pipe pair.
type Endpoint struct {
	object.Base
	side     int
	flags    uint32
	pipe     *messagePipe
	peerKoid object.Koid
}

// NewMessagePipe creates a connected endpoint pair. Undelivered
// messages destroy their handles through arena.
func NewMessagePipe(arena *handle.Arena, flags uint32) (*Endpoint, *Endpoint, object.Rights) {
	pipe := newMessagePipe(arena)
	e0 := &Endpoint{Base: object.NewBase(), side: 0, flags: flags &^ FlagReplyPipe, pipe: pipe}
	e1 := &Endpoint{Base: object.NewBase(), side: 1, flags: flags, pipe: pipe}
	e0.peerKoid = e1.Koid()
	e1.peerKoid = e0.Koid()
	return e0, e1, DefaultPipeRights
}

func (e *Endpoint) Type() object.Type { return object.TypeMessagePipe }

func (e *Endpoint) StateTracker() *object.StateTracker {
	return e.pipe.trackers[e.side]
}

// PeerKoid identifies the opposite endpoint.
func (e *Endpoint) PeerKoid() object.Koid { return e.peerKoid }

// IsReplyPipe reports whether self-transfer is mandated for writes.
func (e *Endpoint) IsReplyPipe() bool { return e.flags&FlagReplyPipe != 0 }

// Write queues msg to the peer. On failure the packet's handles are
// already disowned and the caller restores them to the sender.
func (e *Endpoint) Write(msg *MessagePacket) error {
	return e.pipe.write(e.side, msg)
}

// BeginRead peeks the head message's sizes without consuming it, so
// callers can size buffers before committing. The message stays
// queued and the endpoint stays readable until AcceptRead takes it.
func (e *Endpoint) BeginRead() (numBytes, numHandles int, err error) {
	return e.pipe.peek(e.side)
}

// AcceptRead consumes the message peeked by BeginRead. ErrBadState
// means another goroutine took it between the two calls; retry from
// BeginRead.
func (e *Endpoint) AcceptRead() (*MessagePacket, error) {
	return e.pipe.accept(e.side)
}

// BindPort attaches an I/O-port client to this endpoint; only
// readable/peer-closed subscriptions are meaningful.
func (e *Endpoint) BindPort(pc *waiter.PortClient) error {
	return e.pipe.bindPort(e.side, pc)
}

// OnLastReference tears down this side; undelivered inbound messages,
// peeked or not, die with it, then the peer observes peer-closed.
func (e *Endpoint) OnLastReference() {
	e.pipe.onEndpointDestroyed(e.side)
}
