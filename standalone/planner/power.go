package planner

import (
	"fmt"
	"time"

	"gopnp/core"
	"gopnp/standalone"
)

// Stage is one motor driver power stage. Its enable lines are switched
// in order with a settle delay between them (reference voltage before
// the driver enable).
type Stage struct {
	name   string
	lines  []core.OutputLine
	settle time.Duration
	sleep  func(time.Duration)
	on     bool
}

// NewStage configures the enable pins of a power stage. The stage starts
// switched off.
func NewStage(name string, cfg standalone.PowerConfig, gpio core.GPIODriver, sleep func(time.Duration)) (*Stage, error) {
	s := &Stage{
		name:   name,
		settle: time.Duration(cfg.SettleMS) * time.Millisecond,
		sleep:  sleep,
	}
	if s.sleep == nil {
		s.sleep = time.Sleep
	}
	for _, name := range cfg.Pins {
		pin, err := core.LookupPin(name)
		if err != nil {
			return nil, fmt.Errorf("power %s: %w", s.name, err)
		}
		if err := gpio.ConfigureOutput(pin); err != nil {
			return nil, fmt.Errorf("power %s: %w", s.name, err)
		}
		line := core.OutputLine{Driver: gpio, Pin: pin, Invert: cfg.Invert}
		if err := line.Set(false); err != nil {
			return nil, fmt.Errorf("power %s: %w", s.name, err)
		}
		s.lines = append(s.lines, line)
	}
	return s, nil
}

// Name returns the stage name
func (s *Stage) Name() string {
	return s.name
}

// On reports whether the stage is enabled
func (s *Stage) On() bool {
	return s.on
}

// Set switches the stage. Lines are enabled first to last and disabled
// last to first.
func (s *Stage) Set(on bool) error {
	if on == s.on {
		return nil
	}
	n := len(s.lines)
	for i := 0; i < n; i++ {
		line := s.lines[i]
		if !on {
			line = s.lines[n-1-i]
		}
		if err := line.Set(on); err != nil {
			return fmt.Errorf("power %s: %w", s.name, err)
		}
		if s.settle > 0 {
			s.sleep(s.settle)
		}
	}
	s.on = on
	return nil
}
