// Package sim provides a simulated pick-and-place machine. It implements
// the GPIO, step generator, random and pressure interfaces so the motion
// engine can run on a host without hardware.
package sim

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"gopnp/core"
)

var (
	ErrPinNotConfigured = errors.New("pin not configured")
	ErrPinMode          = errors.New("pin configured in another mode")
	ErrNoPressure       = core.ErrNoPressure
)

type pinMode int

const (
	modeNone pinMode = iota
	modeOutput
	modeInput
)

// Motor is a simulated stepper. Every pulse on any channel in Mask moves
// it one step in the direction set by DirPin.
type Motor struct {
	Name      string
	Mask      core.ChannelMask
	DirPin    core.GPIOPin
	InvertDir bool

	pos    int64
	pulses uint64
}

// Sensor is an input driven by a motor position. It is active while the
// motor lies inside [Low, High].
type Sensor struct {
	Pin       core.GPIOPin
	Motor     string
	Low, High int64
	Invert    bool // pin reads low while active
}

// Machine is a simulated controller board
type Machine struct {
	// StepDelay is the simulated duration of one pulse
	StepDelay time.Duration

	mu       sync.Mutex
	modes    map[core.GPIOPin]pinMode
	levels   map[core.GPIOPin]bool
	links    map[core.GPIOPin]link
	motors   map[string]*Motor
	sensors  map[core.GPIOPin]*Sensor
	handlers map[core.ChannelMask]func()
	rng      *rand.Rand
	rngFails int
	pressure *int32
	history  []PinEvent
}

type link struct {
	source core.GPIOPin
	invert bool
}

// PinEvent records an output change
type PinEvent struct {
	Pin   core.GPIOPin
	Value bool
}

// NewMachine creates an empty machine
func NewMachine(seed int64) *Machine {
	return &Machine{
		modes:    make(map[core.GPIOPin]pinMode),
		levels:   make(map[core.GPIOPin]bool),
		links:    make(map[core.GPIOPin]link),
		motors:   make(map[string]*Motor),
		sensors:  make(map[core.GPIOPin]*Sensor),
		handlers: make(map[core.ChannelMask]func()),
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// AddMotor registers a motor
func (m *Machine) AddMotor(motor *Motor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.motors[motor.Name] = motor
}

// AddSensor registers a position sensor
func (m *Machine) AddSensor(s *Sensor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sensors[s.Pin] = s
}

// Link makes input pin follow output pin source
func (m *Machine) Link(pin, source core.GPIOPin, invert bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[pin] = link{source: source, invert: invert}
}

// SetInput sets the level of a plain input pin
func (m *Machine) SetInput(pin core.GPIOPin, value bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels[pin] = value
}

// SetMotorPosition places a motor at an absolute position
func (m *Machine) SetMotorPosition(name string, pos int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if motor, ok := m.motors[name]; ok {
		motor.pos = pos
	}
}

// MotorPosition returns the absolute position of a motor
func (m *Machine) MotorPosition(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if motor, ok := m.motors[name]; ok {
		return motor.pos
	}
	return 0
}

// Pulses returns the number of pulses a motor has received
func (m *Machine) Pulses(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if motor, ok := m.motors[name]; ok {
		return motor.pulses
	}
	return 0
}

// SetPressure fits a pressure sensor reading p Pa
func (m *Machine) SetPressure(p int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pressure = &p
}

// FailRandom makes the next n random reads fail
func (m *Machine) FailRandom(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rngFails = n
}

// History returns the output changes seen so far
func (m *Machine) History() []PinEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PinEvent(nil), m.history...)
}

// ConfigureOutput implements core.GPIODriver
func (m *Machine) ConfigureOutput(pin core.GPIOPin) error {
	return m.configure(pin, modeOutput)
}

// ConfigureInput implements core.GPIODriver
func (m *Machine) ConfigureInput(pin core.GPIOPin) error {
	return m.configure(pin, modeInput)
}

func (m *Machine) configure(pin core.GPIOPin, mode pinMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur := m.modes[pin]; cur != modeNone && cur != mode {
		return fmt.Errorf("%s: %w", core.PinName(pin), ErrPinMode)
	}
	m.modes[pin] = mode
	return nil
}

// SetPin implements core.GPIODriver
func (m *Machine) SetPin(pin core.GPIOPin, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.modes[pin] != modeOutput {
		return fmt.Errorf("%s: %w", core.PinName(pin), ErrPinNotConfigured)
	}
	m.levels[pin] = value
	m.history = append(m.history, PinEvent{Pin: pin, Value: value})
	return nil
}

// GetPin implements core.GPIODriver
func (m *Machine) GetPin(pin core.GPIOPin) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.modes[pin] == modeNone {
		return false, fmt.Errorf("%s: %w", core.PinName(pin), ErrPinNotConfigured)
	}
	return m.level(pin), nil
}

// ReadPin implements core.GPIODriver
func (m *Machine) ReadPin(pin core.GPIOPin) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level(pin)
}

func (m *Machine) level(pin core.GPIOPin) bool {
	if s, ok := m.sensors[pin]; ok {
		active := false
		if motor, ok := m.motors[s.Motor]; ok {
			active = motor.pos >= s.Low && motor.pos <= s.High
		}
		return active != s.Invert
	}
	if l, ok := m.links[pin]; ok {
		return m.levels[l.source] != l.invert
	}
	return m.levels[pin]
}

// SetCompletionHandler implements core.StepGenerator
func (m *Machine) SetCompletionHandler(mask core.ChannelMask, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[mask] = fn
}

// Emit implements core.StepGenerator. The completion handler runs on its
// own goroutine, like an interrupt.
func (m *Machine) Emit(mask core.ChannelMask, freqHz uint32) {
	m.mu.Lock()
	for _, motor := range m.motors {
		if motor.Mask&mask == 0 {
			continue
		}
		forward := m.levels[motor.DirPin] != motor.InvertDir
		if forward {
			motor.pos++
		} else {
			motor.pos--
		}
		motor.pulses++
	}
	fn := m.handlers[mask]
	delay := m.StepDelay
	m.mu.Unlock()

	if fn == nil {
		return
	}
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		fn()
	}()
}

// NextU32 implements core.RandomSource
func (m *Machine) NextU32() (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rngFails > 0 {
		m.rngFails--
		return 0, core.ErrRandomUnavailable
	}
	return m.rng.Uint32(), nil
}

// ReadPressure implements core.PressureSensor
func (m *Machine) ReadPressure() (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pressure == nil {
		return 0, ErrNoPressure
	}
	return *m.pressure, nil
}

// HasPressure reports whether a pressure sensor is fitted
func (m *Machine) HasPressure() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pressure != nil
}
