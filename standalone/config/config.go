package config

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopnp/core"
	"gopnp/standalone"
)

var (
	ErrMissingAxis  = errors.New("axis not configured")
	ErrInvalidAxis  = errors.New("invalid axis configuration")
	ErrSharedChan   = errors.New("step channel assigned to more than one axis")
	ErrInvalidCam   = errors.New("cam radius must be positive")
	ErrMissingStage = errors.New("power stage not configured")
)

// HeadLimit is the default head rotation limit either side of the
// power-up angle (micro-degrees)
const HeadLimit = 360000000

// LoadConfig parses a JSON configuration string and returns a MachineConfig
func LoadConfig(jsonData []byte) (*standalone.MachineConfig, error) {
	var config standalone.MachineConfig

	err := json.Unmarshal(jsonData, &config)
	if err != nil {
		return nil, err
	}

	// Apply defaults
	applyDefaults(&config)

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// applyDefaults fills in missing configuration values with sensible defaults
func applyDefaults(config *standalone.MachineConfig) {
	if config.Name == "" {
		config.Name = "pnp"
	}
	if config.CamRadius == 0 {
		config.CamRadius = 5.0 // mm
	}

	// Apply defaults to each axis
	for name, axis := range config.Axes {
		if axis.Speed == 0 {
			axis.Speed = 100
		}
		if axis.HomingSpeed == 0 {
			axis.HomingSpeed = axis.Speed / 2
		}
		if axis.CreepSpeed == 0 {
			axis.CreepSpeed = 25
		}
		if axis.StepRate == 0 {
			axis.StepRate = 100 // 100 Hz per speed unit
		}
		if axis.MaxTravel == 0 && (name == "h1" || name == "h2") {
			axis.MaxTravel = HeadLimit
		}
		config.Axes[name] = axis
	}

	for name, stage := range config.Power {
		if stage.SettleMS == 0 {
			stage.SettleMS = 10
		}
		config.Power[name] = stage
	}

	h := &config.Homing
	if h.BackoffMM == 0 {
		h.BackoffMM = 5.0
	}
	if h.CreepMM == 0 {
		h.CreepMM = 1.0
	}
	if h.ZBackoffSteps == 0 {
		h.ZBackoffSteps = 200
	}
	if h.ZCreepSteps == 0 {
		h.ZCreepSteps = 20
	}
	if h.ZFirstBudget == 0 {
		h.ZFirstBudget = 100
	}
	if h.ZBudgetStep == 0 {
		h.ZBudgetStep = 200
	}
	if h.ZMaxAttempts == 0 {
		h.ZMaxAttempts = 20
	}
}

// Validate checks that every axis and power stage is present and that no
// step channel is shared between axes.
func Validate(config *standalone.MachineConfig) error {
	if config.CamRadius <= 0 {
		return ErrInvalidCam
	}

	owner := make(map[int]string)
	for id := standalone.AxisID(0); id < standalone.NumAxes; id++ {
		axis, ok := config.Axes[id.String()]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingAxis, id)
		}
		if axis.StepUnit <= 0 || len(axis.Channels) == 0 || axis.DirPin == "" {
			return fmt.Errorf("%w: %s", ErrInvalidAxis, id)
		}
		if _, err := core.LookupPin(axis.DirPin); err != nil {
			return fmt.Errorf("%s dir pin %q: %w", id, axis.DirPin, err)
		}
		if axis.HomePin != "" {
			if _, err := core.LookupPin(axis.HomePin); err != nil {
				return fmt.Errorf("%s home pin %q: %w", id, axis.HomePin, err)
			}
		}
		for _, ch := range axis.Channels {
			if prev, taken := owner[ch]; taken {
				return fmt.Errorf("%w: channel %d (%s, %s)", ErrSharedChan, ch, prev, id)
			}
			owner[ch] = id.String()
		}
	}

	for s := standalone.PowerStage(0); s < standalone.NumPowerStages; s++ {
		stage, ok := config.Power[s.String()]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingStage, s)
		}
		for _, pin := range stage.Pins {
			if _, err := core.LookupPin(pin); err != nil {
				return fmt.Errorf("%s power pin %q: %w", s, pin, err)
			}
		}
	}

	return nil
}

// DefaultPnPConfig returns the configuration of the reference machine
// (STM32F4 controller, lettered GPIO ports).
func DefaultPnPConfig() *standalone.MachineConfig {
	config := &standalone.MachineConfig{
		Name: "neoden-yy1",
		Axes: map[string]standalone.AxisConfig{
			"x": {
				Channels:  []int{0},
				DirPin:    "PE5",
				HomePin:   "PC6",
				StepUnit:  6250, // nm
				MaxTravel: 368000000,
				Speed:     100,
			},
			"y": {
				Channels:  []int{1, 2},
				DirPin:    "PE7",
				HomePin:   "PC7",
				StepUnit:  6250,
				MaxTravel: 368000000,
				Speed:     100,
			},
			"z": {
				Channels:  []int{3, 4},
				DirPin:    "PE9",
				HomePin:   "PB4",
				StepUnit:  112500, // micro-degrees, 1.8deg/16
				MaxTravel: 180000000,
				Speed:     50,
			},
			"h1": {
				Channels:  []int{5},
				DirPin:    "PE11",
				StepUnit:  112500,
				MaxTravel: HeadLimit,
				Speed:     50,
			},
			"h2": {
				Channels:  []int{6},
				DirPin:    "PE12",
				StepUnit:  112500,
				MaxTravel: HeadLimit,
				Speed:     50,
			},
		},
		Power: map[string]standalone.PowerConfig{
			"x":     {Pins: []string{"PD14", "PE6"}},
			"y":     {Pins: []string{"PD13", "PE8"}},
			"z":     {Pins: []string{"PD15", "PE10"}},
			"heads": {Pins: []string{"PE13"}},
		},
		Actuators: standalone.ActuatorConfig{
			Pump:        "PB13",
			Vacuum1:     "PE2",
			Vacuum2:     "PE1",
			Needle:      "PE0",
			NeedleSense: "PB5",
			Peel:        "PB12",
			Part1:       "PB3",
			Part2:       "PD4",
		},
		CamRadius: 5.0,
	}
	applyDefaults(config)
	return config
}

// DefaultRP2040Config returns the configuration of the RP2040 board.
// Lockstep motors share one step line, so every axis drives a single
// channel; channel n steps on the board's nth step pin. GPIO25 is the
// status LED and GPIO26/27 carry the pressure sensor bus.
func DefaultRP2040Config() *standalone.MachineConfig {
	config := &standalone.MachineConfig{
		Name: "pnp-rp2040",
		Axes: map[string]standalone.AxisConfig{
			"x": {
				Channels:  []int{0},
				DirPin:    "gpio7",
				HomePin:   "gpio12",
				StepUnit:  6250,
				MaxTravel: 368000000,
				Speed:     100,
			},
			"y": {
				Channels:  []int{1},
				DirPin:    "gpio8",
				HomePin:   "gpio13",
				StepUnit:  6250,
				MaxTravel: 368000000,
				Speed:     100,
			},
			"z": {
				Channels:  []int{2},
				DirPin:    "gpio9",
				HomePin:   "gpio14",
				StepUnit:  112500,
				MaxTravel: 180000000,
				Speed:     50,
			},
			"h1": {
				Channels:  []int{3},
				DirPin:    "gpio10",
				StepUnit:  112500,
				MaxTravel: HeadLimit,
				Speed:     50,
			},
			"h2": {
				Channels:  []int{4},
				DirPin:    "gpio11",
				StepUnit:  112500,
				MaxTravel: HeadLimit,
				Speed:     50,
			},
		},
		Power: map[string]standalone.PowerConfig{
			"x":     {Pins: []string{"gpio15"}, Invert: true},
			"y":     {Pins: []string{"gpio16"}, Invert: true},
			"z":     {Pins: []string{"gpio17"}, Invert: true},
			"heads": {Pins: []string{"gpio18"}, Invert: true},
		},
		Actuators: standalone.ActuatorConfig{
			Pump:        "gpio19",
			Vacuum1:     "gpio20",
			Vacuum2:     "gpio21",
			Needle:      "gpio22",
			NeedleSense: "gpio23",
			Peel:        "gpio24",
			Part1:       "gpio28",
			Part2:       "gpio29",
		},
		CamRadius: 5.0,
	}
	applyDefaults(config)
	return config
}
