package ipc

// ring is a fixed-capacity byte ring buffer shared by the data pipe
// and socket cores. Callers provide locking.
type ring struct {
	buf  []byte
	head int
	size int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]byte, capacity)}
}

func (r *ring) free() int { return len(r.buf) - r.size }
func (r *ring) used() int { return r.size }

// write copies as much of data as fits and returns the count.
func (r *ring) write(data []byte) int {
	n := len(data)
	if n > r.free() {
		n = r.free()
	}
	for i := 0; i < n; i++ {
		r.buf[(r.head+r.size+i)%len(r.buf)] = data[i]
	}
	r.size += n
	return n
}

// read copies up to len(out) bytes and returns the count.
func (r *ring) read(out []byte) int {
	n := len(out)
	if n > r.size {
		n = r.size
	}
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	r.head = (r.head + n) % len(r.buf)
	r.size -= n
	return n
}
