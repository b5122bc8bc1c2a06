// Package homing finds the reference position of the axes that carry a
// home sensor.
package homing

import (
	"errors"
	"fmt"

	"gopnp/core"
	"gopnp/standalone"
	"gopnp/standalone/stepgen"
)

var (
	// ErrHomeNotFound is returned when a search exhausts its travel or
	// attempt budget without reaching the sensor
	ErrHomeNotFound = errors.New("home not found")

	// ErrStuck is returned when the sensor stays triggered after backing
	// off. The axis is mechanically stuck and must not be moved further.
	ErrStuck = errors.New("axis stuck on home sensor")

	ErrNoSensor = errors.New("axis has no home sensor")
)

// Axis is the part of a stepgen.Axis used for homing
type Axis interface {
	Name() string
	StepUnit() int64
	HasHomeSensor() bool
	AtHome() bool
	Move(task stepgen.MoveTask) (stepgen.MoveTask, error)
}

// Homer runs the homing procedures for a machine
type Homer struct {
	config *standalone.MachineConfig
	rng    core.RandomSource
	log    core.Logger
}

// NewHomer creates a homer. rng picks the first Z search direction.
func NewHomer(cfg *standalone.MachineConfig, rng core.RandomSource, log core.Logger) *Homer {
	if log == nil {
		log = core.NopLogger{}
	}
	return &Homer{config: cfg, rng: rng, log: log}
}

// HomeAll homes Y, then X, then Z. X shares its sensor path with Y so Y
// must be home first.
func (h *Homer) HomeAll(x, y, z Axis) error {
	if err := h.HomeLinear(y, standalone.AxisY); err != nil {
		return err
	}
	if err := h.HomeLinear(x, standalone.AxisX); err != nil {
		return err
	}
	return h.HomeZ(z)
}

// HomeLinear homes an X or Y axis: leave the sensor if already on it,
// seek it over at most the full travel, creep onto it and zero.
func (h *Homer) HomeLinear(a Axis, id standalone.AxisID) error {
	if !a.HasHomeSensor() {
		return fmt.Errorf("%s: %w", a.Name(), ErrNoSensor)
	}
	ac := h.config.Axes[id.String()]
	towards := ac.HomeForward
	backoff := mmToSteps(h.config.Homing.BackoffMM, a.StepUnit())

	if a.AtHome() {
		h.log.Debugf("%s: on sensor, backing off %d steps", a.Name(), backoff)
		if _, err := a.Move(stepgen.MoveTask{
			Steps:   backoff,
			Forward: !towards,
			Speed:   ac.HomingSpeed,
		}); err != nil {
			return err
		}
		if a.AtHome() {
			h.log.Errorf("%s: still on sensor after backoff", a.Name())
			return fmt.Errorf("%s: %w", a.Name(), ErrStuck)
		}
	}

	travel := uint32(ac.MaxTravel/a.StepUnit()) + backoff
	res, err := a.Move(stepgen.MoveTask{
		Steps:     travel,
		Forward:   towards,
		Speed:     ac.HomingSpeed,
		CheckHome: true,
	})
	if err != nil {
		return err
	}
	if !res.HomeFound {
		h.log.Errorf("%s: sensor not found within %d steps", a.Name(), travel)
		return fmt.Errorf("%s: %w", a.Name(), ErrHomeNotFound)
	}

	return h.creep(a, mmToSteps(h.config.Homing.CreepMM, a.StepUnit()), towards, ac.CreepSpeed)
}

// HomeZ homes the cam driven Z axis. The sensor may lie either way from
// the start position, so the search alternates direction with a growing
// step budget until the sensor is found or the attempts run out.
func (h *Homer) HomeZ(a Axis) error {
	if !a.HasHomeSensor() {
		return fmt.Errorf("%s: %w", a.Name(), ErrNoSensor)
	}
	ac := h.config.Axes[standalone.AxisZ.String()]
	hc := h.config.Homing

	if a.AtHome() {
		if err := h.leaveZ(a, ac.HomingSpeed); err != nil {
			return err
		}
	}

	forward := true
	if h.rng != nil {
		r, err := core.Random(h.rng)
		if err != nil {
			h.log.Warnf("%s: %v, searching forward first", a.Name(), err)
		} else {
			forward = r&1 == 1
		}
	}

	for attempt := 0; attempt < hc.ZMaxAttempts; attempt++ {
		budget := hc.ZFirstBudget + hc.ZBudgetStep*uint32(attempt)
		res, err := a.Move(stepgen.MoveTask{
			Steps:     budget,
			Forward:   forward,
			Speed:     ac.HomingSpeed,
			CheckHome: true,
		})
		if err != nil {
			return err
		}
		if res.HomeFound {
			h.log.Debugf("%s: sensor found on attempt %d", a.Name(), attempt+1)
			return h.creep(a, hc.ZCreepSteps, forward, ac.CreepSpeed)
		}
		forward = !forward
	}

	h.log.Errorf("%s: sensor not found after %d attempts", a.Name(), hc.ZMaxAttempts)
	return fmt.Errorf("%s: %w", a.Name(), ErrHomeNotFound)
}

// leaveZ moves Z off its sensor. The flag may be entered from either
// side so both directions are tried.
func (h *Homer) leaveZ(a Axis, speed int) error {
	steps := h.config.Homing.ZBackoffSteps
	tries := []stepgen.MoveTask{
		{Steps: steps, Forward: true, Speed: speed},
		{Steps: 2 * steps, Forward: false, Speed: speed},
	}
	for _, t := range tries {
		if _, err := a.Move(t); err != nil {
			return err
		}
		if !a.AtHome() {
			return nil
		}
	}
	h.log.Errorf("%s: still on sensor after backoff", a.Name())
	return fmt.Errorf("%s: %w", a.Name(), ErrStuck)
}

func (h *Homer) creep(a Axis, steps uint32, forward bool, speed int) error {
	if _, err := a.Move(stepgen.MoveTask{
		Steps:          steps,
		Forward:        forward,
		Speed:          speed,
		ZeroOnComplete: true,
	}); err != nil {
		return err
	}
	h.log.Infof("%s: homed", a.Name())
	return nil
}

func mmToSteps(mm float64, stepUnit int64) uint32 {
	if stepUnit <= 0 {
		return 0
	}
	return uint32(mm * 1e6 / float64(stepUnit))
}
