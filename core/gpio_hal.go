package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// GPIODriver is the abstract GPIO interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output
	// Returns error if pin is invalid or already in use
	ConfigureOutput(pin GPIOPin) error

	// ConfigureInput configures a pin as a floating digital input
	ConfigureInput(pin GPIOPin) error

	// SetPin sets the pin to high (true) or low (false)
	SetPin(pin GPIOPin, value bool) error

	// GetPin reads the current pin state
	GetPin(pin GPIOPin) (bool, error)

	// ReadPin reads the current pin state (alias for GetPin for convenience)
	ReadPin(pin GPIOPin) bool
}

// OutputLine is a GPIO output with optional inversion
type OutputLine struct {
	Driver GPIODriver
	Pin    GPIOPin
	Invert bool
}

// Set drives the line to the logical value
func (l OutputLine) Set(on bool) error {
	return l.Driver.SetPin(l.Pin, on != l.Invert)
}

// Get reads back the logical value of the line
func (l OutputLine) Get() bool {
	return l.Driver.ReadPin(l.Pin) != l.Invert
}

// InputLine is a GPIO input with optional inversion
type InputLine struct {
	Driver GPIODriver
	Pin    GPIOPin
	Invert bool
}

// Active reports whether the input is in its active state
func (l InputLine) Active() bool {
	return l.Driver.ReadPin(l.Pin) != l.Invert
}
