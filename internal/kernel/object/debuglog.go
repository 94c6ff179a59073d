package object

import (
	"sync"
	"time"
)

// LogRecord is one entry in the kernel debug log.
type LogRecord struct {
	Seq    uint64    `json:"seq"`
	When   time.Time `json:"when"`
	Source Koid      `json:"source"`
	Data   string    `json:"data"`
}

// DebugLog is the bounded in-memory kernel log ring. Log dispatchers
// read from it with independent cursors; external taps (the websocket
// stream) subscribe for live records. Writers never block: the ring
// drops its oldest records and slow subscribers miss entries.
type DebugLog struct {
	mu       sync.Mutex
	capacity int
	records  []LogRecord
	firstSeq uint64
	nextSeq  uint64
	readers  map[*Log]struct{}
	subs     map[chan LogRecord]struct{}
}

// NewDebugLog creates a ring holding up to capacity records.
func NewDebugLog(capacity int) *DebugLog {
	if capacity <= 0 {
		capacity = 1024
	}
	return &DebugLog{
		capacity: capacity,
		readers:  make(map[*Log]struct{}),
		subs:     make(map[chan LogRecord]struct{}),
	}
}

// Write appends a record and wakes readers and subscribers.
func (d *DebugLog) Write(source Koid, data string) LogRecord {
	d.mu.Lock()
	rec := LogRecord{Seq: d.nextSeq, When: time.Now(), Source: source, Data: data}
	d.nextSeq++
	d.records = append(d.records, rec)
	if len(d.records) > d.capacity {
		drop := len(d.records) - d.capacity
		d.records = d.records[drop:]
		d.firstSeq += uint64(drop)
	}
	readers := make([]*Log, 0, len(d.readers))
	for r := range d.readers {
		readers = append(readers, r)
	}
	for ch := range d.subs {
		select {
		case ch <- rec:
		default:
		}
	}
	d.mu.Unlock()

	// Tracker updates run outside the ring lock; tracker locks sit
	// below it in the hierarchy but there is no need to nest here.
	for _, r := range readers {
		r.tracker.UpdateSatisfied(0, SignalReadable)
	}
	return rec
}

// readFrom returns the first record at or after cursor. A cursor that
// fell behind the ring is snapped forward to the oldest retained
// record.
func (d *DebugLog) readFrom(cursor uint64) (LogRecord, uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cursor < d.firstSeq {
		cursor = d.firstSeq
	}
	if cursor >= d.nextSeq {
		return LogRecord{}, cursor, false
	}
	rec := d.records[cursor-d.firstSeq]
	return rec, cursor + 1, true
}

// endCursor is the cursor value just past the newest record.
func (d *DebugLog) endCursor() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nextSeq
}

func (d *DebugLog) addReader(r *Log) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readers[r] = struct{}{}
}

func (d *DebugLog) removeReader(r *Log) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.readers, r)
}

// Subscribe registers a live tap; records are dropped rather than
// blocking when the channel is full.
func (d *DebugLog) Subscribe(buffer int) chan LogRecord {
	ch := make(chan LogRecord, buffer)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a tap registered with Subscribe.
func (d *DebugLog) Unsubscribe(ch chan LogRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subs, ch)
}

// Tail returns up to n of the most recent records.
func (d *DebugLog) Tail(n int) []LogRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n <= 0 || n > len(d.records) {
		n = len(d.records)
	}
	out := make([]LogRecord, n)
	copy(out, d.records[len(d.records)-n:])
	return out
}
