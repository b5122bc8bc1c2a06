package protocol

import "sync"

// Ring is a receive buffer written circularly by a producer (DMA
// channel, interrupt handler) that only exposes its write offset.
type Ring interface {
	// Size returns the ring length in bytes
	Size() int

	// Cursor returns the producer's next write offset, in [0, Size)
	Cursor() int

	// CopyAt copies len(p) bytes starting at off. off+len(p) never
	// exceeds Size.
	CopyAt(p []byte, off int)
}

// SliceRing is a Ring over memory owned by the producer
type SliceRing struct {
	Buf    []byte
	Offset func() int
}

func (s *SliceRing) Size() int                { return len(s.Buf) }
func (s *SliceRing) Cursor() int              { return s.Offset() }
func (s *SliceRing) CopyAt(p []byte, off int) { copy(p, s.Buf[off:off+len(p)]) }

// RingReader drains a Ring by polling its cursor. The consumer must poll
// at least once per ring length of input: a full lap between polls is
// indistinguishable from no input.
type RingReader struct {
	ring    Ring
	last    int
	scratch []byte
}

// NewRingReader starts reading at the ring's current cursor
func NewRingReader(ring Ring) *RingReader {
	return &RingReader{
		ring:    ring,
		last:    ring.Cursor(),
		scratch: make([]byte, ring.Size()),
	}
}

// Available returns the number of unread bytes
func (r *RingReader) Available() int {
	cur := r.ring.Cursor()
	if cur >= r.last {
		return cur - r.last
	}
	return r.ring.Size() - r.last + cur
}

// Drain passes the bytes written since the last call to fn, in order,
// handling one wrap of the ring. It returns the number of bytes passed.
func (r *RingReader) Drain(fn func([]byte)) int {
	cur := r.ring.Cursor()
	n := 0
	if cur > r.last {
		n += r.emit(fn, r.last, cur)
	} else if cur < r.last {
		// Buffer wrapped
		n += r.emit(fn, r.last, r.ring.Size())
		n += r.emit(fn, 0, cur)
	}
	r.last = cur
	return n
}

func (r *RingReader) emit(fn func([]byte), from, to int) int {
	if to <= from {
		return 0
	}
	p := r.scratch[:to-from]
	r.ring.CopyAt(p, from)
	fn(p)
	return len(p)
}

// FifoBuffer is a circular byte queue between a producer goroutine
// (transport reader) and the control task. One slot stays empty so a
// full buffer can be told from an empty one.
type FifoBuffer struct {
	mu    sync.Mutex
	buf   []byte
	read  int
	write int
}

// NewFifoBuffer creates a new FifoBuffer with the specified capacity
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write appends data and returns how many bytes fit
func (f *FifoBuffer) Write(data []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	written := 0
	for _, b := range data {
		next := (f.write + 1) % len(f.buf)
		if next == f.read {
			break
		}
		f.buf[f.write] = b
		f.write = next
		written++
	}
	return written
}

// Read reads up to len(data) bytes
func (f *FifoBuffer) Read(data []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	read := 0
	for read < len(data) && f.read != f.write {
		data[read] = f.buf[f.read]
		f.read = (f.read + 1) % len(f.buf)
		read++
	}
	return read
}

// Available returns the number of bytes available for reading
func (f *FifoBuffer) Available() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available()
}

func (f *FifoBuffer) available() int {
	if f.write >= f.read {
		return f.write - f.read
	}
	return len(f.buf) - f.read + f.write
}

// Free returns the number of bytes available for writing
func (f *FifoBuffer) Free() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buf) - f.available() - 1
}

// IsEmpty returns true if the buffer is empty
func (f *FifoBuffer) IsEmpty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read == f.write
}

// Reset clears the buffer
func (f *FifoBuffer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read = 0
	f.write = 0
}
