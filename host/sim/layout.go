package sim

import (
	"math"
	"time"

	"github.com/aamcrae/config"
	"github.com/pkg/errors"

	"gopnp/core"
	"gopnp/standalone"
)

// Window is a range of motor positions over which a sensor is active
type Window struct {
	Low, High int64
}

// AxisLayout places one simulated motor
type AxisLayout struct {
	Start int64   // initial motor position, steps
	Home  *Window // nil if the axis has no home sensor
}

// Layout describes where the simulated motors start and where their home
// sensors sit.
type Layout struct {
	Seed      int64
	StepDelay time.Duration
	Pressure  *int32 // Pa, nil for no sensor
	Axes      map[string]AxisLayout
}

// DefaultLayout starts X and Y away from their end stops and leaves Z
// off its cam flag.
func DefaultLayout() *Layout {
	return &Layout{
		Seed: 1,
		Axes: map[string]AxisLayout{
			"x":  {Start: 4000, Home: &Window{Low: math.MinInt64, High: 0}},
			"y":  {Start: 2500, Home: &Window{Low: math.MinInt64, High: 0}},
			"z":  {Start: 300, Home: &Window{Low: -10, High: 10}},
			"h1": {},
			"h2": {},
		},
	}
}

// LoadLayout reads a layout from a config file. Missing entries keep
// their DefaultLayout values.
// Sample config:
//
//	[sim]
//	seed=7
//	step-delay=50us
//	pressure=98000
//	[x]
//	start=4000              # steps from the sensor edge
//	home=-100000000,0       # sensor window
//	[z]
//	start=-250
//	home=-10,10
func LoadLayout(file string) (*Layout, error) {
	conf, err := config.ParseFile(file)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", file)
	}
	l := DefaultLayout()

	if s := conf.GetSection("sim"); s != nil {
		if n, err := s.Parse("seed", "%d", &l.Seed); err == nil && n != 1 {
			return nil, errors.Errorf("seed: argument count")
		}
		if d, err := s.GetArg("step-delay"); err == nil {
			l.StepDelay, err = time.ParseDuration(d)
			if err != nil {
				return nil, errors.Wrap(err, "step-delay")
			}
		}
		var p int32
		if n, err := s.Parse("pressure", "%d", &p); err == nil && n == 1 {
			l.Pressure = &p
		}
	}

	for id := standalone.AxisID(0); id < standalone.NumAxes; id++ {
		s := conf.GetSection(id.String())
		if s == nil {
			continue
		}
		a := l.Axes[id.String()]
		if n, err := s.Parse("start", "%d", &a.Start); err == nil && n != 1 {
			return nil, errors.Errorf("%s start: argument count", id)
		}
		var w Window
		if n, err := s.Parse("home", "%d,%d", &w.Low, &w.High); err == nil {
			if n != 2 || w.Low > w.High {
				return nil, errors.Errorf("%s home: invalid window", id)
			}
			a.Home = &w
		}
		l.Axes[id.String()] = a
	}
	return l, nil
}

// NewFromConfig builds a machine wired the way cfg describes the board
func NewFromConfig(cfg *standalone.MachineConfig, layout *Layout) (*Machine, error) {
	if layout == nil {
		layout = DefaultLayout()
	}
	m := NewMachine(layout.Seed)
	m.StepDelay = layout.StepDelay
	if layout.Pressure != nil {
		m.SetPressure(*layout.Pressure)
	}

	for id := standalone.AxisID(0); id < standalone.NumAxes; id++ {
		name := id.String()
		ac, ok := cfg.Axes[name]
		if !ok {
			return nil, errors.Errorf("axis %s not configured", name)
		}
		dir, err := core.LookupPin(ac.DirPin)
		if err != nil {
			return nil, errors.Wrapf(err, "%s dir pin", name)
		}
		var mask core.ChannelMask
		for _, ch := range ac.Channels {
			mask |= core.Channel(uint8(ch))
		}
		al := layout.Axes[name]
		m.AddMotor(&Motor{Name: name, Mask: mask, DirPin: dir, InvertDir: ac.InvertDir})
		m.SetMotorPosition(name, al.Start)

		if ac.HomePin == "" || al.Home == nil {
			continue
		}
		home, err := core.LookupPin(ac.HomePin)
		if err != nil {
			return nil, errors.Wrapf(err, "%s home pin", name)
		}
		m.AddSensor(&Sensor{
			Pin:    home,
			Motor:  name,
			Low:    al.Home.Low,
			High:   al.Home.High,
			Invert: ac.InvertHome,
		})
	}

	// The needle sense switch closes once the needle is down
	act := cfg.Actuators
	if act.Needle != "" && act.NeedleSense != "" {
		needle, err := core.LookupPin(act.Needle)
		if err != nil {
			return nil, errors.Wrap(err, "needle pin")
		}
		sense, err := core.LookupPin(act.NeedleSense)
		if err != nil {
			return nil, errors.Wrap(err, "needle sense pin")
		}
		m.Link(sense, needle, false)
	}

	// Part sensors read high with the heads empty
	for _, name := range []string{act.Part1, act.Part2} {
		if name == "" {
			continue
		}
		pin, err := core.LookupPin(name)
		if err != nil {
			return nil, errors.Wrap(err, "part sensor pin")
		}
		m.SetInput(pin, true)
	}
	return m, nil
}
