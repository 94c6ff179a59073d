package ipc

import (
	"sync"

	"github.com/jixiang52002/magenta/internal/kernel/object"
	"github.com/jixiang52002/magenta/internal/kernel/status"
)

// Rights for the two ends of a data pipe.
const (
	DefaultProducerRights = object.RightTransfer | object.RightWrite |
		object.RightGetProperty | object.RightSetProperty
	DefaultConsumerRights = object.RightTransfer | object.RightRead |
		object.RightGetProperty | object.RightSetProperty
)

// DefaultDataPipeCapacity is used when creation passes zero.
const DefaultDataPipeCapacity = 32 * 1024

// dataPipe is the shared ring between one producer and one consumer
// dispatcher. Thresholds gate the *_THRESHOLD signals: the producer's
// write-threshold signal holds while at least writeThreshold bytes are
// free, the consumer's read-threshold while at least readThreshold
// bytes are queued.
type dataPipe struct {
	mu   sync.Mutex
	ring *ring

	producerAlive bool
	consumerAlive bool

	readThreshold  int
	writeThreshold int

	producerTracker *object.StateTracker
	consumerTracker *object.StateTracker
}

func newDataPipe(capacity int) *dataPipe {
	if capacity <= 0 {
		capacity = DefaultDataPipeCapacity
	}
	p := &dataPipe{
		ring:          newRing(capacity),
		producerAlive: true,
		consumerAlive: true,
		producerTracker: object.NewStateTracker(true, object.SignalsState{
			Satisfied: object.SignalWritable | object.SignalWriteThreshold,
			Satisfiable: object.SignalWritable | object.SignalWriteThreshold |
				object.SignalPeerClosed,
		}),
		consumerTracker: object.NewStateTracker(true, object.SignalsState{
			Satisfied: object.SignalNone,
			Satisfiable: object.SignalReadable | object.SignalReadThreshold |
				object.SignalPeerClosed,
		}),
	}
	return p
}

// updateSignalsLocked recomputes both trackers' level signals from the
// ring occupancy.
func (p *dataPipe) updateSignalsLocked() {
	var prodSet, prodClear object.Signals
	if p.ring.free() > 0 {
		prodSet |= object.SignalWritable
	} else {
		prodClear |= object.SignalWritable
	}
	if p.ring.free() >= p.effectiveWriteThresholdLocked() {
		prodSet |= object.SignalWriteThreshold
	} else {
		prodClear |= object.SignalWriteThreshold
	}
	p.producerTracker.UpdateSatisfied(prodClear, prodSet)

	var consSet, consClear object.Signals
	if p.ring.used() > 0 {
		consSet |= object.SignalReadable
	} else {
		consClear |= object.SignalReadable
	}
	if p.ring.used() >= p.effectiveReadThresholdLocked() && p.ring.used() > 0 {
		consSet |= object.SignalReadThreshold
	} else {
		consClear |= object.SignalReadThreshold
	}
	p.consumerTracker.UpdateSatisfied(consClear, consSet)
}

func (p *dataPipe) effectiveReadThresholdLocked() int {
	if p.readThreshold <= 0 {
		return 1
	}
	return p.readThreshold
}

func (p *dataPipe) effectiveWriteThresholdLocked() int {
	if p.writeThreshold <= 0 {
		return 1
	}
	return p.writeThreshold
}

// Producer is the write end of a data pipe.
type Producer struct {
	object.Base
	pipe *dataPipe
}

// Consumer is the read end of a data pipe.
type Consumer struct {
	object.Base
	pipe *dataPipe
}

// NewDataPipe creates a producer/consumer pair over one ring of the
// given capacity.
func NewDataPipe(capacity int) (*Producer, *Consumer, object.Rights, object.Rights) {
	pipe := newDataPipe(capacity)
	prod := &Producer{Base: object.NewBase(), pipe: pipe}
	cons := &Consumer{Base: object.NewBase(), pipe: pipe}
	return prod, cons, DefaultProducerRights, DefaultConsumerRights
}

func (p *Producer) Type() object.Type                  { return object.TypeDataPipeProducer }
func (p *Producer) StateTracker() *object.StateTracker { return p.pipe.producerTracker }

// Write queues data, partially if the ring is nearly full. A full ring
// is the retryable ErrBadState; a dead consumer is ErrPeerClosed.
func (p *Producer) Write(data []byte) (int, error) {
	pipe := p.pipe
	pipe.mu.Lock()
	defer pipe.mu.Unlock()
	if !pipe.consumerAlive {
		return 0, status.ErrPeerClosed
	}
	n := pipe.ring.write(data)
	if n == 0 && len(data) > 0 {
		return 0, status.ErrBadState
	}
	pipe.updateSignalsLocked()
	return n, nil
}

// WriteThreshold reports the producer-side threshold property.
func (p *Producer) WriteThreshold() int {
	p.pipe.mu.Lock()
	defer p.pipe.mu.Unlock()
	return p.pipe.writeThreshold
}

// SetWriteThreshold sets the free-space level at which the
// write-threshold signal asserts. Zero restores "any space".
func (p *Producer) SetWriteThreshold(threshold int) error {
	pipe := p.pipe
	pipe.mu.Lock()
	defer pipe.mu.Unlock()
	if threshold < 0 || threshold > len(pipe.ring.buf) {
		return status.ErrOutOfRange
	}
	pipe.writeThreshold = threshold
	pipe.updateSignalsLocked()
	return nil
}

// OnLastReference kills the write end; the consumer can drain what is
// queued but will never see new data.
func (p *Producer) OnLastReference() {
	pipe := p.pipe
	pipe.mu.Lock()
	defer pipe.mu.Unlock()
	pipe.producerAlive = false
	satisfiableClear := object.Signals(0)
	if pipe.ring.used() == 0 {
		satisfiableClear = object.SignalReadable | object.SignalReadThreshold
	}
	if pipe.consumerAlive {
		pipe.consumerTracker.UpdateState(0, object.SignalPeerClosed, satisfiableClear, 0)
	}
}

func (c *Consumer) Type() object.Type                  { return object.TypeDataPipeConsumer }
func (c *Consumer) StateTracker() *object.StateTracker { return c.pipe.consumerTracker }

// Read drains up to len(out) bytes. Empty with a live producer is the
// retryable ErrBadState; empty and dead is ErrPeerClosed.
func (c *Consumer) Read(out []byte) (int, error) {
	pipe := c.pipe
	pipe.mu.Lock()
	defer pipe.mu.Unlock()
	n := pipe.ring.read(out)
	if n == 0 && len(out) > 0 {
		if !pipe.producerAlive {
			return 0, status.ErrPeerClosed
		}
		return 0, status.ErrBadState
	}
	if pipe.ring.used() == 0 && !pipe.producerAlive {
		pipe.consumerTracker.UpdateState(0, 0,
			object.SignalReadable|object.SignalReadThreshold, 0)
	}
	pipe.updateSignalsLocked()
	return n, nil
}

// ReadThreshold reports the consumer-side threshold property.
func (c *Consumer) ReadThreshold() int {
	c.pipe.mu.Lock()
	defer c.pipe.mu.Unlock()
	return c.pipe.readThreshold
}

// SetReadThreshold sets the queued-byte level at which the
// read-threshold signal asserts. Zero restores "any data".
func (c *Consumer) SetReadThreshold(threshold int) error {
	pipe := c.pipe
	pipe.mu.Lock()
	defer pipe.mu.Unlock()
	if threshold < 0 || threshold > len(pipe.ring.buf) {
		return status.ErrOutOfRange
	}
	pipe.readThreshold = threshold
	pipe.updateSignalsLocked()
	return nil
}

// OnLastReference kills the read end; further producer writes fail
// with peer-closed.
func (c *Consumer) OnLastReference() {
	pipe := c.pipe
	pipe.mu.Lock()
	defer pipe.mu.Unlock()
	pipe.consumerAlive = false
	if pipe.producerAlive {
		pipe.producerTracker.UpdateState(
			object.SignalWritable|object.SignalWriteThreshold,
			object.SignalPeerClosed,
			object.SignalWritable|object.SignalWriteThreshold, 0)
	}
}
