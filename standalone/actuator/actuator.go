// Package actuator drives the pneumatic outputs of the placement heads
// and reads their sensors.
package actuator

import (
	"errors"
	"fmt"
	"time"

	"gopnp/core"
	"gopnp/standalone"
)

var (
	ErrNeedleSet     = errors.New("needle already set")
	ErrNeedleCleared = errors.New("needle already cleared")
	ErrNeedleStuck   = errors.New("needle stuck")
	ErrNoPressure    = core.ErrNoPressure
	ErrUnknownSensor = errors.New("unknown sensor")
	ErrNotFitted     = errors.New("output not fitted")
)

const (
	needleSettle = 150 * time.Millisecond
	needlePoll   = 25 * time.Millisecond
	needlePolls  = 40
	peelSettle   = 250 * time.Millisecond
)

// PowerSwitch switches motor driver power stages
type PowerSwitch interface {
	SetPower(stage standalone.PowerStage, on bool) error
}

// Options holds the optional collaborators of a Bank
type Options struct {
	Power    PowerSwitch         // head power follows the pump, may be nil
	Pressure core.PressureSensor // vacuum sensor, may be nil
	Sleep    func(time.Duration)
	Log      core.Logger
}

// Bank is the set of pneumatic outputs and head sensors
type Bank struct {
	outputs map[standalone.ActuateTarget]*core.OutputLine
	sense   *core.InputLine
	parts   [2]*core.InputLine

	power    PowerSwitch
	pressure core.PressureSensor
	sleep    func(time.Duration)
	log      core.Logger
}

// NewBank configures the actuator pins. Empty pin names leave the
// output or sensor unfitted.
func NewBank(cfg standalone.ActuatorConfig, gpio core.GPIODriver, opts Options) (*Bank, error) {
	b := &Bank{
		outputs:  make(map[standalone.ActuateTarget]*core.OutputLine),
		power:    opts.Power,
		pressure: opts.Pressure,
		sleep:    opts.Sleep,
		log:      opts.Log,
	}
	if b.sleep == nil {
		b.sleep = time.Sleep
	}
	if b.log == nil {
		b.log = core.NopLogger{}
	}

	outputs := []struct {
		target standalone.ActuateTarget
		pin    string
	}{
		{standalone.TargetPump, cfg.Pump},
		{standalone.TargetVacuum1, cfg.Vacuum1},
		{standalone.TargetVacuum2, cfg.Vacuum2},
		{standalone.TargetNeedle, cfg.Needle},
		{standalone.TargetPeel, cfg.Peel},
	}
	for _, o := range outputs {
		if o.pin == "" {
			continue
		}
		pin, err := core.LookupPin(o.pin)
		if err != nil {
			return nil, fmt.Errorf("actuator pin %q: %w", o.pin, err)
		}
		if err := gpio.ConfigureOutput(pin); err != nil {
			return nil, fmt.Errorf("actuator pin %q: %w", o.pin, err)
		}
		line := &core.OutputLine{Driver: gpio, Pin: pin}
		if err := line.Set(false); err != nil {
			return nil, fmt.Errorf("actuator pin %q: %w", o.pin, err)
		}
		b.outputs[o.target] = line
	}

	input := func(name string, invert bool) (*core.InputLine, error) {
		if name == "" {
			return nil, nil
		}
		pin, err := core.LookupPin(name)
		if err != nil {
			return nil, fmt.Errorf("sensor pin %q: %w", name, err)
		}
		if err := gpio.ConfigureInput(pin); err != nil {
			return nil, fmt.Errorf("sensor pin %q: %w", name, err)
		}
		return &core.InputLine{Driver: gpio, Pin: pin, Invert: invert}, nil
	}

	var err error
	if b.sense, err = input(cfg.NeedleSense, false); err != nil {
		return nil, err
	}
	// Part sensors pull low while a part is held
	if b.parts[0], err = input(cfg.Part1, true); err != nil {
		return nil, err
	}
	if b.parts[1], err = input(cfg.Part2, true); err != nil {
		return nil, err
	}
	return b, nil
}

// Get returns the state of an output
func (b *Bank) Get(target standalone.ActuateTarget) bool {
	line, ok := b.outputs[target]
	return ok && line.Get()
}

// Set switches one output
func (b *Bank) Set(target standalone.ActuateTarget, on bool) error {
	line, ok := b.outputs[target]
	if !ok {
		return ErrNotFitted
	}

	switch target {
	case standalone.TargetPump:
		if b.power != nil {
			if err := b.power.SetPower(standalone.PowerHeads, on); err != nil {
				return err
			}
		}
		return line.Set(on)

	case standalone.TargetNeedle:
		return b.setNeedle(line, on)

	case standalone.TargetPeel:
		if err := line.Set(on); err != nil {
			return err
		}
		if on {
			b.sleep(peelSettle)
		}
		return nil
	}
	return line.Set(on)
}

// Apply switches every target in targets, in AllTargets order. Errors do
// not stop the remaining targets; report is called for each.
func (b *Bank) Apply(targets standalone.ActuateTarget, on bool, report func(error)) {
	for _, t := range standalone.AllTargets {
		if !targets.Has(t) {
			continue
		}
		if err := b.Set(t, on); err != nil {
			b.log.Warnf("actuate %02x=%v: %v", uint8(t), on, err)
			if report != nil {
				report(err)
			}
		}
	}
}

func (b *Bank) setNeedle(line *core.OutputLine, down bool) error {
	if b.sense != nil {
		cur := b.sense.Active()
		if cur && down {
			return ErrNeedleSet
		}
		if !cur && !down {
			return ErrNeedleCleared
		}
	}

	if err := line.Set(down); err != nil {
		return err
	}
	b.sleep(needleSettle)

	if down || b.sense == nil {
		return nil
	}
	for i := 0; i < needlePolls; i++ {
		if !b.sense.Active() {
			return nil
		}
		b.sleep(needlePoll)
	}
	return ErrNeedleStuck
}

// PartPresent reports whether head 1 or 2 holds a part
func (b *Bank) PartPresent(head int) (bool, error) {
	if head < 1 || head > len(b.parts) || b.parts[head-1] == nil {
		return false, ErrUnknownSensor
	}
	return b.parts[head-1].Active(), nil
}

// Pressure returns the vacuum pressure in Pa
func (b *Bank) Pressure() (int32, error) {
	if b.pressure == nil {
		return 0, ErrNoPressure
	}
	return b.pressure.ReadPressure()
}

// Read returns the reading of a sensor channel: part presence (0 or 1)
// for the head sensors, pressure for SensorPressure.
func (b *Bank) Read(sensor int) (int32, error) {
	switch sensor {
	case standalone.SensorPart1, standalone.SensorPart2:
		present, err := b.PartPresent(sensor)
		if err != nil {
			return 0, err
		}
		if present {
			return 1, nil
		}
		return 0, nil
	case standalone.SensorPressure:
		return b.Pressure()
	}
	return 0, ErrUnknownSensor
}
