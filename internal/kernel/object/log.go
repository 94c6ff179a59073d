package object

import (
	"sync"

	"github.com/jixiang52002/magenta/internal/kernel/status"
)

// LogFlagReadable requests a log handle that can drain the debug log;
// write-only log handles are the common case for userspace.
const LogFlagReadable uint32 = 1 << 0

// DefaultLogRights is the rights mask for log handles.
const DefaultLogRights = RightDuplicate | RightTransfer | RightRead | RightWrite

// Log is the dispatcher flavor fronting the kernel debug log. Readers
// hold a private cursor into the shared ring; the readable signal is
// set whenever records are pending past the cursor.
type Log struct {
	Base
	dlog     *DebugLog
	readable bool
	tracker  *StateTracker

	mu     sync.Mutex
	cursor uint64
}

// NewLog creates a log dispatcher over the shared ring.
func NewLog(dlog *DebugLog, flags uint32) (*Log, Rights) {
	l := &Log{
		Base:     NewBase(),
		dlog:     dlog,
		readable: flags&LogFlagReadable != 0,
		tracker: NewStateTracker(true, SignalsState{
			Satisfied:   SignalWritable,
			Satisfiable: SignalReadable | SignalWritable,
		}),
	}
	if l.readable {
		l.cursor = dlog.endCursor()
		dlog.addReader(l)
	}
	return l, DefaultLogRights
}

func (l *Log) Type() Type                  { return TypeLog }
func (l *Log) StateTracker() *StateTracker { return l.tracker }

// OnLastReference detaches the reader cursor from the ring.
func (l *Log) OnLastReference() {
	if l.readable {
		l.dlog.removeReader(l)
	}
}

// Write appends one record to the debug log.
func (l *Log) Write(source Koid, data string) error {
	if len(data) == 0 {
		return status.ErrInvalidArgs
	}
	l.dlog.Write(source, data)
	return nil
}

// Read drains the next pending record. ErrBadState means nothing is
// pending right now; wait on readable and retry.
func (l *Log) Read() (LogRecord, error) {
	if !l.readable {
		return LogRecord{}, status.ErrAccessDenied
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, next, ok := l.dlog.readFrom(l.cursor)
	if !ok {
		l.tracker.UpdateSatisfied(SignalReadable, 0)
		return LogRecord{}, status.ErrBadState
	}
	l.cursor = next
	if _, _, more := l.dlog.readFrom(next); !more {
		l.tracker.UpdateSatisfied(SignalReadable, 0)
	}
	return rec, nil
}
