package serial

import (
	"io"
)

// Port represents a serial port interface.
// Native ports use github.com/tarm/serial; tests use pipes.
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate (USB CDC ignores this)
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultBaud is the controller's UART rate
const DefaultBaud = 115200

// DefaultConfig returns the controller's default port settings.
// Reads block so that a line reader sees no spurious EOF.
func DefaultConfig(device string) *Config {
	return &Config{
		Device: device,
		Baud:   DefaultBaud,
	}
}
