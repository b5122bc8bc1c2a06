package stepgen

// Signal is a single-slot mailbox used as a one-shot rendezvous between
// an issuer and an axis worker. At most one post is pending at a time;
// a second post before the matching wait is dropped.
type Signal chan struct{}

// NewSignal creates an empty signal
func NewSignal() Signal {
	return make(Signal, 1)
}

// Post wakes the waiter. Safe to call from interrupt handlers.
func (s Signal) Post() {
	select {
	case s <- struct{}{}:
	default:
	}
}

// Wait blocks until the signal is posted
func (s Signal) Wait() {
	<-s
}
