package stepgen

import (
	"fmt"

	"gopnp/core"
	"gopnp/standalone"
)

// PinDirection drives a direction input through a GPIO output
type PinDirection struct {
	Line core.OutputLine
}

func (d PinDirection) SetDirection(forward bool) {
	_ = d.Line.Set(forward)
}

// SwitchSensor is a home sensor read from a GPIO input
type SwitchSensor struct {
	Line core.InputLine
}

func (s SwitchSensor) AtHome() bool {
	return s.Line.Active()
}

// NewAxisFromConfig configures the pins of an axis and starts its worker
func NewAxisFromConfig(name string, cfg standalone.AxisConfig, gpio core.GPIODriver, gen core.StepGenerator, log core.Logger) (*Axis, error) {
	dirPin, err := core.LookupPin(cfg.DirPin)
	if err != nil {
		return nil, fmt.Errorf("%s dir pin: %w", name, err)
	}
	if err := gpio.ConfigureOutput(dirPin); err != nil {
		return nil, fmt.Errorf("%s dir pin: %w", name, err)
	}

	var home HomeSensor
	if cfg.HomePin != "" {
		homePin, err := core.LookupPin(cfg.HomePin)
		if err != nil {
			return nil, fmt.Errorf("%s home pin: %w", name, err)
		}
		if err := gpio.ConfigureInput(homePin); err != nil {
			return nil, fmt.Errorf("%s home pin: %w", name, err)
		}
		home = SwitchSensor{Line: core.InputLine{Driver: gpio, Pin: homePin, Invert: cfg.InvertHome}}
	}

	var mask core.ChannelMask
	for _, ch := range cfg.Channels {
		mask |= core.Channel(uint8(ch))
	}

	return NewAxis(Options{
		Name:     name,
		StepUnit: cfg.StepUnit,
		Mask:     mask,
		StepRate: cfg.StepRate,
		Dir:      PinDirection{Line: core.OutputLine{Driver: gpio, Pin: dirPin, Invert: cfg.InvertDir}},
		Home:     home,
		Gen:      gen,
		Log:      log,
	}), nil
}
