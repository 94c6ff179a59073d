package waiter

import (
	"sync"
	"time"

	"github.com/jixiang52002/magenta/internal/kernel/object"
	"github.com/jixiang52002/magenta/internal/kernel/status"
)

// DefaultPortRights is the rights mask for fresh port handles.
const DefaultPortRights = object.RightDuplicate | object.RightTransfer |
	object.RightRead | object.RightWrite

// Packet kinds carried by a port queue.
const (
	PacketTypeKernel uint32 = iota
	PacketTypeUser
	PacketTypeSignal
	PacketTypeException
)

// Packet is one unit of edge-triggered delivery. Signal packets are
// synthesized by PortClient bindings; user packets carry opaque bytes.
type Packet struct {
	Key     uint64
	Type    uint32
	Signals object.Signals
	Data    []byte
}

// Port is the edge-triggered alternative to level waits: producers
// push packets, consumers pop them in arrival order, one per Wait.
type Port struct {
	object.Base

	mu        sync.Mutex
	cond      *sync.Cond
	packets   []*Packet
	noClients bool
}

// NewPort creates an empty port.
func NewPort() (*Port, object.Rights) {
	p := &Port{Base: object.NewBase()}
	p.cond = sync.NewCond(&p.mu)
	return p, DefaultPortRights
}

func (p *Port) Type() object.Type { return object.TypePort }

// OnZeroHandles drops queued packets and refuses further producers
// once no handle can ever wait again.
func (p *Port) OnZeroHandles() {
	p.mu.Lock()
	p.noClients = true
	p.packets = nil
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Queue appends a packet. ErrUnavailable means every handle to the
// port is gone and delivery is pointless.
func (p *Port) Queue(pkt *Packet) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.noClients {
		return status.ErrUnavailable
	}
	p.packets = append(p.packets, pkt)
	p.cond.Signal()
	return nil
}

// Wait pops the oldest packet, blocking up to timeout. A negative
// timeout blocks forever; zero polls.
func (p *Port) Wait(timeout time.Duration) (*Packet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pkt, ok := p.popLocked(); ok {
		return pkt, nil
	}
	if timeout == 0 {
		return nil, status.ErrTimedOut
	}

	timedOut := false
	var timer *time.Timer
	if timeout > 0 {
		timer = time.AfterFunc(timeout, func() {
			p.mu.Lock()
			timedOut = true
			p.cond.Broadcast()
			p.mu.Unlock()
		})
		defer timer.Stop()
	}

	for {
		if pkt, ok := p.popLocked(); ok {
			return pkt, nil
		}
		if p.noClients {
			return nil, status.ErrHandleClosed
		}
		if timedOut {
			return nil, status.ErrTimedOut
		}
		p.cond.Wait()
	}
}

func (p *Port) popLocked() (*Packet, bool) {
	if len(p.packets) == 0 {
		return nil, false
	}
	pkt := p.packets[0]
	p.packets = p.packets[1:]
	return pkt, true
}

// Depth reports the queued packet count.
func (p *Port) Depth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.packets)
}

// PortClient binds a source object to a port: state transitions whose
// signals intersect the subscribed mask synthesize signal packets on
// the port. Source objects call Signal while holding their own lock;
// the port lock sits below source locks in the hierarchy.
type PortClient struct {
	port    *Port
	key     uint64
	signals object.Signals
}

// NewPortClient subscribes key to the given signals on port, taking a
// reference that Close drops.
func NewPortClient(port *Port, key uint64, signals object.Signals) *PortClient {
	object.Retain(port)
	return &PortClient{port: port, key: key, signals: signals}
}

// Signals returns the subscribed mask.
func (c *PortClient) Signals() object.Signals { return c.signals }

// Signal queues a packet if signal intersects the subscription.
func (c *PortClient) Signal(signal object.Signals) {
	if signal&c.signals == 0 {
		return
	}
	// Delivery failure (no clients) is not the source's problem.
	_ = c.port.Queue(&Packet{Key: c.key, Type: PacketTypeSignal, Signals: signal})
}

// Close releases the port reference held by the binding.
func (c *PortClient) Close() {
	object.Release(c.port)
}
