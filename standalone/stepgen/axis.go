package stepgen

import (
	"errors"
	"sync/atomic"

	"gopnp/core"
)

// ErrBusy is returned when a task is assigned to an axis that has not
// finished (and been collected from) its previous task
var ErrBusy = errors.New("axis busy")

// State is the worker state of an axis
type State int32

const (
	Idle State = iota
	Stepping
	HomeFound
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Stepping:
		return "stepping"
	case HomeFound:
		return "home-found"
	case Completed:
		return "completed"
	}
	return "unknown"
}

// MoveTask is a single bounded motion request for one axis
type MoveTask struct {
	Steps     uint32 // Number of steps to take
	Forward   bool   // Direction; forward moves increase the position
	Speed     int    // Base speed
	Ramp      bool   // Apply the acceleration ramp
	CheckHome bool   // Stop early when the home sensor triggers

	// ZeroOnComplete resets the position to zero once the task ends.
	// Used by homing so that only the worker writes the position.
	ZeroOnComplete bool

	// Results, valid after Wait returns
	HomeFound bool   // Home sensor triggered before all steps were taken
	Done      uint32 // Steps actually taken
}

// DirectionSetter drives the direction input of a motor driver
type DirectionSetter interface {
	SetDirection(forward bool)
}

// HomeSensor reports whether an axis sits on its home sensor
type HomeSensor interface {
	AtHome() bool
}

// Options configures an Axis
type Options struct {
	Name     string
	StepUnit int64            // Physical length or angle of one step
	Mask     core.ChannelMask // Step generator channels driven by this axis
	StepRate uint32           // Pulse frequency (Hz) per unit of speed
	Dir      DirectionSetter
	Home     HomeSensor // nil for axes without a home sensor
	Gen      core.StepGenerator
	Log      core.Logger
}

// Axis owns one motor: its position, direction and a worker goroutine
// that executes one MoveTask at a time. Only the worker writes the
// position; the issuer writes the pending task before posting assigned
// and reads the result after complete.
type Axis struct {
	name     string
	stepUnit int64
	mask     core.ChannelMask
	stepRate uint32
	dir      DirectionSetter
	home     HomeSensor
	gen      core.StepGenerator
	log      core.Logger

	position  atomic.Int64
	state     atomic.Int32
	busy      atomic.Bool
	direction atomic.Bool

	pending  MoveTask
	assigned Signal
	stepDone Signal
	complete Signal
	quit     chan struct{}
}

// NewAxis creates an axis and starts its worker
func NewAxis(opts Options) *Axis {
	a := &Axis{
		name:     opts.Name,
		stepUnit: opts.StepUnit,
		mask:     opts.Mask,
		stepRate: opts.StepRate,
		dir:      opts.Dir,
		home:     opts.Home,
		gen:      opts.Gen,
		log:      opts.Log,
		assigned: NewSignal(),
		stepDone: NewSignal(),
		complete: NewSignal(),
		quit:     make(chan struct{}),
	}
	if a.log == nil {
		a.log = core.NopLogger{}
	}
	if a.stepRate == 0 {
		a.stepRate = 1
	}

	a.gen.SetCompletionHandler(a.mask, a.stepDone.Post)
	go a.run()
	return a
}

// Name returns the axis name
func (a *Axis) Name() string {
	return a.name
}

// StepUnit returns the physical size of one step
func (a *Axis) StepUnit() int64 {
	return a.stepUnit
}

// Mask returns the step generator channels of the axis
func (a *Axis) Mask() core.ChannelMask {
	return a.mask
}

// Position returns the current offset from home in steps
func (a *Axis) Position() int64 {
	return a.position.Load()
}

// Direction returns the last commanded direction
func (a *Axis) Direction() bool {
	return a.direction.Load()
}

// State returns the worker state
func (a *Axis) State() State {
	return State(a.state.Load())
}

// Busy reports whether a task is in flight or not yet collected
func (a *Axis) Busy() bool {
	return a.busy.Load()
}

// HasHomeSensor reports whether the axis has a home sensor
func (a *Axis) HasHomeSensor() bool {
	return a.home != nil
}

// AtHome reports whether the home sensor is triggered. Always false for
// axes without a sensor.
func (a *Axis) AtHome() bool {
	return a.home != nil && a.home.AtHome()
}

// Start hands a task to the worker and returns without waiting
func (a *Axis) Start(task MoveTask) error {
	if !a.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	a.pending = task
	a.assigned.Post()
	return nil
}

// Wait blocks until the running task completes and returns its result.
// The axis accepts a new task once Wait has returned.
func (a *Axis) Wait() MoveTask {
	a.complete.Wait()
	result := a.pending
	a.state.Store(int32(Idle))
	a.busy.Store(false)
	return result
}

// Move runs a task to completion
func (a *Axis) Move(task MoveTask) (MoveTask, error) {
	if err := a.Start(task); err != nil {
		return task, err
	}
	return a.Wait(), nil
}

// Close stops the worker. A task in flight is abandoned.
func (a *Axis) Close() {
	close(a.quit)
}

// run is the worker loop
func (a *Axis) run() {
	for {
		select {
		case <-a.quit:
			return
		case <-a.assigned:
		}

		if !a.execute(&a.pending) {
			return
		}
		a.complete.Post()
	}
}

// execute steps through a task. It returns false if the axis was closed
// while waiting for a step to complete.
func (a *Axis) execute(t *MoveTask) bool {
	t.HomeFound = false
	t.Done = 0
	a.state.Store(int32(Stepping))

	a.direction.Store(t.Forward)
	a.dir.SetDirection(t.Forward)

	inc := int64(-1)
	if t.Forward {
		inc = 1
	}

	for i := uint32(0); i < t.Steps; i++ {
		if t.CheckHome && a.AtHome() {
			t.HomeFound = true
			break
		}

		speed := t.Speed
		if t.Ramp {
			speed = RampSpeed(i, t.Steps, t.Speed)
		}
		a.gen.Emit(a.mask, a.frequency(speed))

		select {
		case <-a.stepDone:
		case <-a.quit:
			return false
		}

		a.position.Add(inc)
		t.Done++
	}

	if t.ZeroOnComplete {
		a.position.Store(0)
	}

	if t.HomeFound {
		a.state.Store(int32(HomeFound))
	} else {
		a.state.Store(int32(Completed))
	}
	a.log.Debugf("%s: %d/%d steps forward=%v home=%v pos=%d",
		a.name, t.Done, t.Steps, t.Forward, t.HomeFound, a.position.Load())
	return true
}

func (a *Axis) frequency(speed int) uint32 {
	if speed < 1 {
		speed = 1
	}
	return uint32(speed) * a.stepRate
}
