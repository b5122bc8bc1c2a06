// Package planner coordinates moves across the axes of the machine.
// Coordinated means concurrent dispatch and a joint wait for completion;
// axes are not interpolated against each other.
package planner

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"gopnp/core"
	"gopnp/standalone"
	"gopnp/standalone/homing"
	"gopnp/standalone/kinematics"
	"gopnp/standalone/stepgen"
)

var (
	ErrNotHomed     = errors.New("machine not homed")
	ErrHalted       = errors.New("motion halted")
	ErrAxisBusy     = errors.New("axis moving")
	ErrNoAxis       = errors.New("axis not configured")
	ErrNoStage      = errors.New("power stage not configured")
	ErrNotHeadAxis  = errors.New("not a head axis")
	ErrTooManySteps = errors.New("move exceeds step counter")
)

// Axis is the part of a stepgen.Axis used by the coordinator
type Axis interface {
	homing.Axis
	Position() int64
	Busy() bool
	Start(task stepgen.MoveTask) error
	Wait() stepgen.MoveTask
}

// Coordinator issues move tasks to the axes and owns the machine motion
// state: power stages, homed and halted flags.
type Coordinator struct {
	config *standalone.MachineConfig
	kin    kinematics.Kinematics
	axes   [standalone.NumAxes]Axis
	stages [standalone.NumPowerStages]*Stage
	log    core.Logger

	homed  atomic.Bool
	halted atomic.Bool

	// zOffset is the last commanded linear Z offset (nm)
	zOffset atomic.Int64
}

// NewCoordinator creates a coordinator. axes is indexed by AxisID and
// stages by PowerStage; every entry must be present.
func NewCoordinator(cfg *standalone.MachineConfig, kin kinematics.Kinematics, axes []Axis, stages []*Stage, log core.Logger) (*Coordinator, error) {
	c := &Coordinator{config: cfg, kin: kin, log: log}
	if c.log == nil {
		c.log = core.NopLogger{}
	}
	if len(axes) != int(standalone.NumAxes) {
		return nil, ErrNoAxis
	}
	for i, a := range axes {
		if a == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoAxis, standalone.AxisID(i))
		}
		c.axes[i] = a
	}
	if len(stages) != int(standalone.NumPowerStages) {
		return nil, ErrNoStage
	}
	for i, s := range stages {
		if s == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoStage, standalone.PowerStage(i))
		}
		c.stages[i] = s
	}
	return c, nil
}

// Homed reports whether homing has completed
func (c *Coordinator) Homed() bool {
	return c.homed.Load()
}

// Halted reports whether motion was stopped by a stuck axis
func (c *Coordinator) Halted() bool {
	return c.halted.Load()
}

// Halt stops all further motion
func (c *Coordinator) Halt() {
	c.halted.Store(true)
}

// Axis returns one of the axes
func (c *Coordinator) Axis(id standalone.AxisID) Axis {
	return c.axes[id]
}

// SetPower switches a power stage. Stages are only switched while none
// of their axes has a task in flight.
func (c *Coordinator) SetPower(stage standalone.PowerStage, on bool) error {
	if stage < 0 || stage >= standalone.NumPowerStages {
		return ErrNoStage
	}
	for _, id := range stage.Axes() {
		if c.axes[id].Busy() {
			return fmt.Errorf("%s: %w", id, ErrAxisBusy)
		}
	}
	c.log.Debugf("power %s: %v", stage, on)
	return c.stages[stage].Set(on)
}

// PowerOn reports whether a power stage is enabled
func (c *Coordinator) PowerOn(stage standalone.PowerStage) bool {
	return c.stages[stage].On()
}

// Home runs the homing sequence. A stuck axis halts the machine.
func (c *Coordinator) Home(h *homing.Homer) error {
	if c.halted.Load() {
		return ErrHalted
	}
	c.homed.Store(false)

	err := h.HomeAll(c.axes[standalone.AxisX], c.axes[standalone.AxisY], c.axes[standalone.AxisZ])
	if err != nil {
		if errors.Is(err, homing.ErrStuck) {
			c.log.Errorf("halting motion: %v", err)
			c.halted.Store(true)
		}
		return err
	}
	c.zOffset.Store(0)
	c.homed.Store(true)
	return nil
}

// Position returns the current machine position
func (c *Coordinator) Position() standalone.Position {
	return standalone.Position{
		X:  c.linear(standalone.AxisX),
		Y:  c.linear(standalone.AxisY),
		Z:  c.zOffset.Load(),
		H1: c.linear(standalone.AxisH1),
		H2: c.linear(standalone.AxisH2),
	}
}

func (c *Coordinator) linear(id standalone.AxisID) int64 {
	a := c.axes[id]
	return a.Position() * a.StepUnit()
}

// MoveXY moves X and Y to absolute targets (nm) and waits for both
func (c *Coordinator) MoveXY(x, y int64) error {
	if err := c.ready(); err != nil {
		return err
	}
	started, err := c.startXY(x, y, true, true)
	c.wait(started)
	return err
}

// MoveZ moves Z to an absolute linear offset (nm) from home and waits
func (c *Coordinator) MoveZ(offset int64) error {
	if err := c.ready(); err != nil {
		return err
	}
	angle, err := c.kin.Translate(offset)
	if err != nil {
		return fmt.Errorf("z %d: %w", offset, err)
	}

	a := c.axes[standalone.AxisZ]
	started, err := c.start(a, kinematics.AngleToSteps(angle, a.StepUnit()), standalone.AxisZ)
	if err != nil {
		return err
	}
	c.wait(started)
	c.zOffset.Store(offset)
	return nil
}

// StartHead starts a head rotation to an absolute angle (micro-degrees)
// without waiting for it
func (c *Coordinator) StartHead(id standalone.AxisID, angle int64) (bool, error) {
	if id != standalone.AxisH1 && id != standalone.AxisH2 {
		return false, fmt.Errorf("%s: %w", id, ErrNotHeadAxis)
	}
	if c.halted.Load() {
		return false, ErrHalted
	}
	started, err := c.startHead(id, angle)
	return len(started) > 0, err
}

// MoveHead rotates a head to an absolute angle and waits
func (c *Coordinator) MoveHead(id standalone.AxisID, angle int64) error {
	started, err := c.StartHead(id, angle)
	if err != nil {
		return err
	}
	if started {
		c.axes[id].Wait()
	}
	return nil
}

// Dispatch runs the motion of a command: heads and XY are started
// together and joined, then Z moves last. The Z transition must not
// overlap head or XY motion.
func (c *Coordinator) Dispatch(cmd *standalone.Command) error {
	if !cmd.HasMotion() {
		return nil
	}
	if c.halted.Load() {
		return ErrHalted
	}
	if (cmd.XSet || cmd.YSet || cmd.ZSet) && !c.homed.Load() {
		return ErrNotHomed
	}

	var started []Axis
	var errs []error
	blocked := false
	keep := func(s []Axis, err error) {
		started = append(started, s...)
		if err != nil {
			errs = append(errs, err)
			// A rejected head angle leaves the rest of the command running
			blocked = blocked || !errors.Is(err, kinematics.ErrOutOfRange)
		}
	}

	if cmd.H1Set {
		keep(c.startHead(standalone.AxisH1, cmd.H1))
	}
	if cmd.H2Set {
		keep(c.startHead(standalone.AxisH2, cmd.H2))
	}
	if cmd.XSet || cmd.YSet {
		keep(c.startXY(cmd.X, cmd.Y, cmd.XSet, cmd.YSet))
	}
	c.wait(started)

	if cmd.ZSet && !blocked {
		if err := c.MoveZ(cmd.Z); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// startHead range checks a head angle against the configured limit and
// starts the rotation
func (c *Coordinator) startHead(id standalone.AxisID, angle int64) ([]Axis, error) {
	limit := c.config.Axes[id.String()].MaxTravel
	if limit > 0 && (angle > limit || angle < -limit) {
		return nil, fmt.Errorf("%s %d: %w", id, angle, kinematics.ErrOutOfRange)
	}
	a := c.axes[id]
	return c.start(a, kinematics.AngleToSteps(angle, a.StepUnit()), id)
}

func (c *Coordinator) ready() error {
	if c.halted.Load() {
		return ErrHalted
	}
	if !c.homed.Load() {
		return ErrNotHomed
	}
	return nil
}

// startXY clamps the targets to the travel limits and starts the set
// axes. It returns the axes that were started.
func (c *Coordinator) startXY(x, y int64, xSet, ySet bool) ([]Axis, error) {
	var started []Axis
	targets := []struct {
		id     standalone.AxisID
		target int64
		set    bool
	}{
		{standalone.AxisX, x, xSet},
		{standalone.AxisY, y, ySet},
	}
	for _, t := range targets {
		if !t.set {
			continue
		}
		a := c.axes[t.id]
		target := c.clamp(t.id, t.target)
		s, err := c.start(a, target/a.StepUnit(), t.id)
		started = append(started, s...)
		if err != nil {
			return started, err
		}
	}
	return started, nil
}

func (c *Coordinator) clamp(id standalone.AxisID, target int64) int64 {
	max := c.config.Axes[id.String()].MaxTravel
	if target < 0 {
		c.log.Warnf("%s: target %d clamped to 0", id, target)
		return 0
	}
	if max > 0 && target > max {
		c.log.Warnf("%s: target %d clamped to %d", id, target, max)
		return max
	}
	return target
}

// start issues a ramped task moving a from its position to target
// steps. Nothing is started for a zero delta.
func (c *Coordinator) start(a Axis, target int64, id standalone.AxisID) ([]Axis, error) {
	delta := target - a.Position()
	if delta == 0 {
		return nil, nil
	}
	if delta > math.MaxUint32 || delta < -math.MaxUint32 {
		return nil, fmt.Errorf("%s: %d steps: %w", id, delta, ErrTooManySteps)
	}
	task := stepgen.MoveTask{
		Steps:   uint32(abs(delta)),
		Forward: delta > 0,
		Speed:   c.config.Axes[id.String()].Speed,
		Ramp:    true,
	}
	if err := a.Start(task); err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	c.log.Debugf("%s: %d steps forward=%v", id, task.Steps, task.Forward)
	return []Axis{a}, nil
}

func (c *Coordinator) wait(started []Axis) {
	for _, a := range started {
		a.Wait()
	}
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
