package sim

import "sync"

// UART is a simulated receive DMA channel: incoming bytes are written
// circularly into a fixed buffer and only the write offset is exposed.
// It implements protocol.Ring.
type UART struct {
	mu   sync.Mutex
	buf  []byte
	head int
}

// NewUART creates a receive ring of size bytes
func NewUART(size int) *UART {
	return &UART{buf: make([]byte, size)}
}

// Write stores p in the ring, overwriting unread data if the consumer
// has fallen a full lap behind
func (u *UART) Write(p []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, b := range p {
		u.buf[u.head] = b
		u.head = (u.head + 1) % len(u.buf)
	}
	return len(p), nil
}

func (u *UART) Size() int {
	return len(u.buf)
}

func (u *UART) Cursor() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.head
}

func (u *UART) CopyAt(p []byte, off int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	copy(p, u.buf[off:off+len(p)])
}
