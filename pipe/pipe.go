// Package pipe implements the anonymous pipe built by pipe2: a small
// fixed-size ring buffer with paired read/write ends and reference
// counting on each end.
package pipe

import (
	"sync"

	"github.com/sv39os/kernel/defs"
)

// Size is the fixed ring-buffer capacity pipe2 allocates.
const Size = 32

// Yield_f is the injected suspension hook: it hands the CPU to the
// scheduler's idle context and returns once this task is next chosen to
// run. Boot wiring sets it once; tests may set a no-op.
var Yield_f func()

func yield() {
	if Yield_f != nil {
		Yield_f()
	}
}

// ring is the shared 32-byte circular buffer and its head/tail
// bookkeeping, guarded by mu.
type ring struct {
	mu   sync.Mutex
	buf  [Size]byte
	head int // write position, monotonically increasing
	tail int // read position, monotonically increasing

	readers int
	writers int
}

func (r *ring) used() int { return r.head - r.tail }
func (r *ring) full() bool { return r.used() == Size }
func (r *ring) empty() bool { return r.used() == 0 }

// Pipe_t is one end of a pipe: the read end and the write end share the
// underlying ring through r.
type Pipe_t struct {
	r         *ring
	readable  bool
	writable  bool
}

// New allocates a ring buffer and returns its read end and write end.
func New() (read, write *Pipe_t) {
	r := &ring{readers: 1, writers: 1}
	return &Pipe_t{r: r, readable: true}, &Pipe_t{r: r, writable: true}
}

// Reopen increments the appropriate end's reference count, used when a
// descriptor referencing this pipe end is duplicated (dup/dup3/fork).
func (p *Pipe_t) Reopen() defs.Err_t {
	p.r.mu.Lock()
	defer p.r.mu.Unlock()
	if p.readable {
		p.r.readers++
	}
	if p.writable {
		p.r.writers++
	}
	return 0
}

// Close drops this end's reference. Once every write end (or every read
// end) is dropped, the other side observes it: reads see EOF once
// writers reaches 0 with the buffer empty; writes fail once readers
// reaches 0.
func (p *Pipe_t) Close() defs.Err_t {
	p.r.mu.Lock()
	defer p.r.mu.Unlock()
	if p.readable {
		p.r.readers--
	}
	if p.writable {
		p.r.writers--
	}
	return 0
}

// Read copies up to len(dst) bytes out of the ring, yielding while the
// buffer is empty and at least one writer remains open; it returns 0
// once the buffer is empty and every writer has closed.
func (p *Pipe_t) Read(dst []byte) (int, defs.Err_t) {
	if !p.readable {
		return 0, defs.EBADF
	}
	for {
		p.r.mu.Lock()
		if !p.r.empty() {
			n := copy(dst, p.r.bufSlice())
			p.r.tail += n
			p.r.mu.Unlock()
			return n, 0
		}
		writers := p.r.writers
		p.r.mu.Unlock()
		if writers == 0 {
			return 0, 0
		}
		yield()
	}
}

// Write copies up to len(src) bytes into the ring, yielding while the
// buffer is full and at least one reader remains open; it fails with
// EBADF once every reader has closed. A write larger than the ring's
// remaining space is split across multiple yields.
func (p *Pipe_t) Write(src []byte) (int, defs.Err_t) {
	if !p.writable {
		return 0, defs.EBADF
	}
	total := 0
	for total < len(src) {
		p.r.mu.Lock()
		if p.r.readers == 0 {
			p.r.mu.Unlock()
			return total, defs.EBADF
		}
		if !p.r.full() {
			n := p.r.writeSlice(src[total:])
			total += n
			p.r.mu.Unlock()
			if n == 0 {
				yield()
			}
			continue
		}
		p.r.mu.Unlock()
		yield()
	}
	return total, 0
}

// bufSlice returns up to one contiguous read of whatever is currently
// buffered, starting at tail; caller holds r.mu.
func (r *ring) bufSlice() []byte {
	n := r.used()
	start := r.tail % Size
	if start+n <= Size {
		return r.buf[start : start+n]
	}
	return r.buf[start:Size]
}

// writeSlice copies as much of src as fits into the ring starting at
// head, wrapping past the end of buf, returning the number of bytes written; caller
// holds r.mu. A write that fills the buffer exactly still succeeds
// rather than silently dropping the last byte.
func (r *ring) writeSlice(src []byte) int {
	room := Size - r.used()
	if room == 0 {
		return 0
	}
	if len(src) > room {
		src = src[:room]
	}
	start := r.head % Size
	n := copy(r.buf[start:Size], src)
	if n < len(src) {
		n += copy(r.buf[0:], src[n:])
	}
	r.head += n
	return n
}
