package core

import "errors"

// ErrRandomUnavailable is returned when the random source keeps failing
var ErrRandomUnavailable = errors.New("random source unavailable")

// randomRetries bounds the busy retry on a random source. Failures are
// transient (peripheral busy) so no backoff is applied.
const randomRetries = 64

// RandomSource yields hardware random numbers. NextU32 may fail while
// the peripheral is busy.
type RandomSource interface {
	NextU32() (uint32, error)
}

// RandomFunc adapts a function to RandomSource
type RandomFunc func() (uint32, error)

func (f RandomFunc) NextU32() (uint32, error) {
	return f()
}

// Random returns the next valid sample from src, retrying transient
// failures a bounded number of times.
func Random(src RandomSource) (uint32, error) {
	for i := 0; i < randomRetries; i++ {
		v, err := src.NextU32()
		if err == nil {
			return v, nil
		}
	}
	return 0, ErrRandomUnavailable
}
