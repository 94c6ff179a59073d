package object

import (
	"fmt"
	"sync/atomic"
)

// Koid is a kernel object id, globally unique and independent of any
// handle. Zero is never assigned.
type Koid uint64

var koidCounter atomic.Uint64

func generateKoid() Koid { return Koid(koidCounter.Add(1)) }

// Type tags the closed set of kernel object flavors.
type Type uint32

const (
	TypeNone Type = iota
	TypeProcess
	TypeThread
	TypeVmObject
	TypeMessagePipe
	TypeEvent
	TypePort
	TypeDataPipeProducer
	TypeDataPipeConsumer
	TypeInterrupt
	TypeIoMapping
	TypePciDevice
	TypePciInterrupt
	TypeLog
	TypeWaitSet
	TypeSocket
	TypeResource
)

var typeNames = map[Type]string{
	TypeNone:             "none",
	TypeProcess:          "process",
	TypeThread:           "thread",
	TypeVmObject:         "vm-object",
	TypeMessagePipe:      "message-pipe",
	TypeEvent:            "event",
	TypePort:             "port",
	TypeDataPipeProducer: "data-pipe-producer",
	TypeDataPipeConsumer: "data-pipe-consumer",
	TypeInterrupt:        "interrupt",
	TypeIoMapping:        "io-mapping",
	TypePciDevice:        "pci-device",
	TypePciInterrupt:     "pci-interrupt",
	TypeLog:              "log",
	TypeWaitSet:          "wait-set",
	TypeSocket:           "socket",
	TypeResource:         "resource",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("type(%d)", uint32(t))
}

// Dispatcher is the polymorphic surface shared by every kernel object.
type Dispatcher interface {
	Koid() Koid
	Type() Type

	// StateTracker returns the object's signal tracker, or nil for
	// non-waitable flavors.
	StateTracker() *StateTracker

	base() *Base
}

// Signaler is implemented by objects that accept user signals
// (object_signal). Masks are validated by the implementation.
type Signaler interface {
	UserSignal(clearMask, setMask Signals) error
}

// Closer is implemented by objects whose handles need type-specific
// close logic despite having no StateTracker to cancel.
// TODO(handle): fold this into a uniform close() capability on
// Dispatcher instead of asserting per type at delete time.
type Closer interface {
	Close()
}

// PeerHolder is implemented by paired objects (pipe/socket endpoints)
// and reports the koid of the opposite endpoint.
type PeerHolder interface {
	PeerKoid() Koid
}

type lastReferencer interface {
	OnLastReference()
}

type zeroHandler interface {
	OnZeroHandles()
}

// Base carries the identity and lifetime counters common to all
// dispatchers. Embed by value; NewBase seeds one owned reference.
type Base struct {
	koid    Koid
	refs    atomic.Int64
	handles atomic.Int32
}

// NewBase assigns a fresh koid and one reference owned by the caller.
func NewBase() Base {
	b := Base{koid: generateKoid()}
	b.refs.Store(1)
	return b
}

func (b *Base) Koid() Koid { return b.koid }

// StateTracker is nil unless the embedding flavor overrides it.
func (b *Base) StateTracker() *StateTracker { return nil }

func (b *Base) base() *Base { return b }

// HandleCount reports the number of live handles referencing the object.
func (b *Base) HandleCount() int32 { return b.handles.Load() }

// RefCount reports live references; exposed for lifetime tests.
func (b *Base) RefCount() int64 { return b.refs.Load() }

// Retain adds a shared reference to d.
func Retain(d Dispatcher) {
	if d.base().refs.Add(1) <= 1 {
		panic("object: retain of destroyed dispatcher")
	}
}

// Release drops one reference. The final release runs the object's
// OnLastReference hook exactly once, on the releasing goroutine.
// Callers inside table/arena critical sections must defer Release
// until after unlocking.
func Release(d Dispatcher) {
	n := d.base().refs.Add(-1)
	switch {
	case n == 0:
		if lr, ok := d.(lastReferencer); ok {
			lr.OnLastReference()
		}
	case n < 0:
		panic("object: release underflow")
	}
}

// AddHandle records a new handle referencing d.
func AddHandle(d Dispatcher) {
	d.base().handles.Add(1)
}

// RemoveHandle records a handle drop; the transition to zero fires the
// object's OnZeroHandles hook (e.g. a process with no remaining
// handles is killed, a port stops accepting packets).
func RemoveHandle(d Dispatcher) {
	n := d.base().handles.Add(-1)
	switch {
	case n == 0:
		if zh, ok := d.(zeroHandler); ok {
			zh.OnZeroHandles()
		}
	case n < 0:
		panic("object: handle count underflow")
	}
}
