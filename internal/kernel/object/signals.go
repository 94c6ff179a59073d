package object

// Signals is the 32-bit signal bitmask carried by waitable objects.
type Signals uint32

const (
	SignalNone       Signals = 0
	SignalReadable   Signals = 1 << 0
	SignalWritable   Signals = 1 << 1
	SignalPeerClosed Signals = 1 << 2

	SignalSignal0 Signals = 1 << 3
	SignalSignal1 Signals = 1 << 4
	SignalSignal2 Signals = 1 << 5
	SignalSignal3 Signals = 1 << 6
	SignalSignal4 Signals = 1 << 7

	// SignalSignaled is the generic "this object fired" bit: set on
	// events via user signals and on processes/threads at termination.
	SignalSignaled Signals = SignalSignal0

	SignalUserAll Signals = SignalSignal0 | SignalSignal1 | SignalSignal2 |
		SignalSignal3 | SignalSignal4

	SignalReadThreshold  Signals = 1 << 8
	SignalWriteThreshold Signals = 1 << 9
)

// SignalsState is a snapshot of a StateTracker: which signals
// currently hold and which can ever hold again.
type SignalsState struct {
	Satisfied   Signals `json:"satisfied"`
	Satisfiable Signals `json:"satisfiable"`
}
