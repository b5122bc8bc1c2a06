//go:build !wasm

package serial

import (
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

// nativePort is a tarm/serial port. Read, Write, Close and Flush come
// from the embedded port.
type nativePort struct {
	*serial.Port
}

// Open opens a native serial port
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", cfg.Device)
	}
	return nativePort{port}, nil
}
