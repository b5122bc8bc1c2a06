package planner

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gopnp/core"
	"gopnp/host/sim"
	"gopnp/standalone"
	"gopnp/standalone/config"
	"gopnp/standalone/homing"
	"gopnp/standalone/kinematics"
	"gopnp/standalone/stepgen"
)

type rig struct {
	cfg   *standalone.MachineConfig
	m     *sim.Machine
	coord *Coordinator
	homer *homing.Homer
	naps  []time.Duration
}

func newRig(t *testing.T, layout *sim.Layout) *rig {
	t.Helper()
	r := &rig{cfg: config.DefaultPnPConfig()}
	m, err := sim.NewFromConfig(r.cfg, layout)
	if err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}
	r.m = m

	axes := make([]Axis, standalone.NumAxes)
	for id := standalone.AxisID(0); id < standalone.NumAxes; id++ {
		a, err := stepgen.NewAxisFromConfig(id.String(), r.cfg.Axes[id.String()], m, m, nil)
		if err != nil {
			t.Fatalf("NewAxisFromConfig(%s) failed: %v", id, err)
		}
		t.Cleanup(a.Close)
		axes[id] = a
	}

	stages := make([]*Stage, standalone.NumPowerStages)
	for s := standalone.PowerStage(0); s < standalone.NumPowerStages; s++ {
		stages[s], err = NewStage(s.String(), r.cfg.Power[s.String()], m, func(d time.Duration) {
			r.naps = append(r.naps, d)
		})
		if err != nil {
			t.Fatalf("NewStage(%s) failed: %v", s, err)
		}
	}

	r.coord, err = NewCoordinator(r.cfg, kinematics.NewCam(r.cfg.CamRadius), axes, stages, nil)
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}
	r.homer = homing.NewHomer(r.cfg, m, nil)
	return r
}

func (r *rig) home(t *testing.T) {
	t.Helper()
	if err := r.coord.Home(r.homer); err != nil {
		t.Fatalf("Home failed: %v", err)
	}
}

func TestMoveXY(t *testing.T) {
	r := newRig(t, sim.DefaultLayout())
	r.home(t)

	if err := r.coord.MoveXY(10000000, 5000000); err != nil {
		t.Fatalf("MoveXY failed: %v", err)
	}
	pos := r.coord.Position()
	if pos.X != 10000000 || pos.Y != 5000000 {
		t.Errorf("Expected X=10000000 Y=5000000, got X=%d Y=%d", pos.X, pos.Y)
	}
	if p := r.coord.Axis(standalone.AxisX).Position(); p != 1600 {
		t.Errorf("Expected x at 1600 steps, got %d", p)
	}
}

func TestMoveXYIdempotent(t *testing.T) {
	r := newRig(t, sim.DefaultLayout())
	r.home(t)

	r.coord.MoveXY(20000000, 30000000)
	x, y := r.m.Pulses("x"), r.m.Pulses("y")

	if err := r.coord.MoveXY(20000000, 30000000); err != nil {
		t.Fatalf("MoveXY failed: %v", err)
	}
	if r.m.Pulses("x") != x || r.m.Pulses("y") != y {
		t.Error("Second identical move emitted steps")
	}
}

func TestMoveXYClamps(t *testing.T) {
	r := newRig(t, sim.DefaultLayout())
	r.home(t)

	if err := r.coord.MoveXY(400000000, -5000000); err != nil {
		t.Fatalf("MoveXY failed: %v", err)
	}
	pos := r.coord.Position()
	if pos.X != r.cfg.Axes["x"].MaxTravel {
		t.Errorf("Expected X clamped to %d, got %d", r.cfg.Axes["x"].MaxTravel, pos.X)
	}
	if pos.Y != 0 {
		t.Errorf("Expected Y clamped to 0, got %d", pos.Y)
	}
}

func TestMoveRequiresHoming(t *testing.T) {
	r := newRig(t, sim.DefaultLayout())

	if err := r.coord.MoveXY(1000000, 1000000); !errors.Is(err, ErrNotHomed) {
		t.Errorf("Expected ErrNotHomed, got %v", err)
	}
	if err := r.coord.MoveZ(1000000); !errors.Is(err, ErrNotHomed) {
		t.Errorf("Expected ErrNotHomed, got %v", err)
	}
	cmd := &standalone.Command{Kind: standalone.CmdMove, X: 1, XSet: true}
	if err := r.coord.Dispatch(cmd); !errors.Is(err, ErrNotHomed) {
		t.Errorf("Expected ErrNotHomed, got %v", err)
	}

	// Heads have no sensor and move from their power-up position
	if err := r.coord.MoveHead(standalone.AxisH1, 90000000); err != nil {
		t.Errorf("MoveHead failed: %v", err)
	}
	if p := r.m.Pulses("h1"); p != 800 {
		t.Errorf("Expected 800 head steps, got %d", p)
	}
}

func TestMoveZ(t *testing.T) {
	r := newRig(t, sim.DefaultLayout())
	r.home(t)
	before := r.m.Pulses("z")

	if err := r.coord.MoveZ(5000000); err != nil {
		t.Fatalf("MoveZ failed: %v", err)
	}
	if p := r.coord.Axis(standalone.AxisZ).Position(); p != 800 {
		t.Errorf("Expected z at 800 steps, got %d", p)
	}
	if z := r.coord.Position().Z; z != 5000000 {
		t.Errorf("Expected Z 5000000, got %d", z)
	}

	err := r.coord.MoveZ(11000000)
	if !errors.Is(err, kinematics.ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}
	if p := r.m.Pulses("z") - before; p != 800 {
		t.Errorf("Rejected move emitted steps: %d", p-800)
	}
	if z := r.coord.Position().Z; z != 5000000 {
		t.Errorf("Expected Z unchanged, got %d", z)
	}
}

func TestStuckHalts(t *testing.T) {
	layout := sim.DefaultLayout()
	x := layout.Axes["x"]
	x.Home = &sim.Window{Low: -1 << 40, High: 1 << 40}
	layout.Axes["x"] = x
	r := newRig(t, layout)

	if err := r.coord.Home(r.homer); !errors.Is(err, homing.ErrStuck) {
		t.Fatalf("Expected ErrStuck, got %v", err)
	}
	if !r.coord.Halted() || r.coord.Homed() {
		t.Error("Expected halted and not homed")
	}
	if err := r.coord.MoveXY(0, 0); !errors.Is(err, ErrHalted) {
		t.Errorf("Expected ErrHalted, got %v", err)
	}
	if err := r.coord.MoveHead(standalone.AxisH2, 1000); !errors.Is(err, ErrHalted) {
		t.Errorf("Expected ErrHalted, got %v", err)
	}
	if err := r.coord.Home(r.homer); !errors.Is(err, ErrHalted) {
		t.Errorf("Expected ErrHalted, got %v", err)
	}
}

func TestHomeNotFoundIsRecoverable(t *testing.T) {
	layout := sim.DefaultLayout()
	y := layout.Axes["y"]
	y.Home = &sim.Window{Low: -1 << 40, High: -1 << 30}
	layout.Axes["y"] = y
	r := newRig(t, layout)

	if err := r.coord.Home(r.homer); !errors.Is(err, homing.ErrHomeNotFound) {
		t.Fatalf("Expected ErrHomeNotFound, got %v", err)
	}
	if r.coord.Halted() {
		t.Error("HomeNotFound must not halt the machine")
	}
	if err := r.coord.MoveXY(0, 0); !errors.Is(err, ErrNotHomed) {
		t.Errorf("Expected ErrNotHomed, got %v", err)
	}
}

func TestStartHeadRejectsLinearAxis(t *testing.T) {
	r := newRig(t, sim.DefaultLayout())
	if _, err := r.coord.StartHead(standalone.AxisX, 100); !errors.Is(err, ErrNotHeadAxis) {
		t.Errorf("Expected ErrNotHeadAxis, got %v", err)
	}
}

func TestPowerStageSequence(t *testing.T) {
	r := newRig(t, sim.DefaultLayout())
	if err := r.coord.SetPower(standalone.PowerX, true); err != nil {
		t.Fatalf("SetPower failed: %v", err)
	}
	if !r.coord.PowerOn(standalone.PowerX) {
		t.Error("Expected X stage on")
	}
	r.coord.SetPower(standalone.PowerX, false)

	vref, _ := core.LookupPin("PD14")
	st, _ := core.LookupPin("PE6")
	var seq []string
	for _, ev := range r.m.History() {
		if ev.Pin == vref || ev.Pin == st {
			seq = append(seq, fmt.Sprintf("%s=%v", core.PinName(ev.Pin), ev.Value))
		}
	}
	want := []string{"PD14=false", "PE6=false", "PD14=true", "PE6=true", "PE6=false", "PD14=false"}
	if fmt.Sprint(seq) != fmt.Sprint(want) {
		t.Errorf("Expected %v, got %v", want, seq)
	}
	if len(r.naps) != 4 || r.naps[0] != 10*time.Millisecond {
		t.Errorf("Expected four 10ms settle delays, got %v", r.naps)
	}
}

// recordingAxis logs task starts and joins
type recordingAxis struct {
	name   string
	pos    int64
	busy   bool
	events *[]string
	mu     *sync.Mutex
	task   stepgen.MoveTask
}

func (a *recordingAxis) Name() string        { return a.name }
func (a *recordingAxis) StepUnit() int64     { return 1 }
func (a *recordingAxis) HasHomeSensor() bool { return false }
func (a *recordingAxis) AtHome() bool        { return false }
func (a *recordingAxis) Position() int64     { return a.pos }
func (a *recordingAxis) Busy() bool          { return a.busy }

func (a *recordingAxis) log(ev string) {
	a.mu.Lock()
	*a.events = append(*a.events, ev+" "+a.name)
	a.mu.Unlock()
}

func (a *recordingAxis) Start(task stepgen.MoveTask) error {
	if a.busy {
		return stepgen.ErrBusy
	}
	a.busy = true
	a.task = task
	a.log("start")
	return nil
}

func (a *recordingAxis) Wait() stepgen.MoveTask {
	if a.task.Forward {
		a.pos += int64(a.task.Steps)
	} else {
		a.pos -= int64(a.task.Steps)
	}
	a.busy = false
	a.log("wait")
	return a.task
}

func (a *recordingAxis) Move(task stepgen.MoveTask) (stepgen.MoveTask, error) {
	if err := a.Start(task); err != nil {
		return task, err
	}
	return a.Wait(), nil
}

func newRecordingCoordinator(t *testing.T) (*Coordinator, []*recordingAxis, *[]string) {
	t.Helper()
	cfg := config.DefaultPnPConfig()
	for name, ac := range cfg.Axes {
		ac.MaxTravel = 1 << 40
		cfg.Axes[name] = ac
	}
	events := &[]string{}
	mu := &sync.Mutex{}

	var rec []*recordingAxis
	axes := make([]Axis, standalone.NumAxes)
	for id := standalone.AxisID(0); id < standalone.NumAxes; id++ {
		a := &recordingAxis{name: id.String(), events: events, mu: mu}
		rec = append(rec, a)
		axes[id] = a
	}

	m := sim.NewMachine(1)
	stages := make([]*Stage, standalone.NumPowerStages)
	for s := standalone.PowerStage(0); s < standalone.NumPowerStages; s++ {
		var err error
		stages[s], err = NewStage(s.String(), cfg.Power[s.String()], m, func(time.Duration) {})
		if err != nil {
			t.Fatalf("NewStage failed: %v", err)
		}
	}

	c, err := NewCoordinator(cfg, kinematics.NewCam(cfg.CamRadius), axes, stages, nil)
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}
	c.homed.Store(true)
	return c, rec, events
}

func TestDispatchOrder(t *testing.T) {
	c, _, events := newRecordingCoordinator(t)

	cmd := &standalone.Command{
		Kind:  standalone.CmdMove,
		X:     100,
		XSet:  true,
		Y:     200,
		YSet:  true,
		Z:     5000000,
		ZSet:  true,
		H1:    10,
		H1Set: true,
		H2:    20,
		H2Set: true,
	}
	if err := c.Dispatch(cmd); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	want := []string{
		"start h1", "start h2", "start x", "start y",
		"wait h1", "wait h2", "wait x", "wait y",
		"start z", "wait z",
	}
	if fmt.Sprint(*events) != fmt.Sprint(want) {
		t.Errorf("Expected %v, got %v", want, *events)
	}
}

func TestDispatchZRejectedAfterXY(t *testing.T) {
	c, rec, _ := newRecordingCoordinator(t)

	cmd := &standalone.Command{Kind: standalone.CmdMove, X: 100, XSet: true, Z: 1 << 40, ZSet: true}
	err := c.Dispatch(cmd)
	if !errors.Is(err, kinematics.ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}
	if rec[standalone.AxisX].pos != 100 {
		t.Errorf("Expected X to complete its move, got %d", rec[standalone.AxisX].pos)
	}
	if rec[standalone.AxisZ].pos != 0 {
		t.Errorf("Expected Z untouched, got %d", rec[standalone.AxisZ].pos)
	}
}

func TestDispatchRejectsHeadBeyondLimit(t *testing.T) {
	c, rec, events := newRecordingCoordinator(t)

	cmd := &standalone.Command{
		Kind:  standalone.CmdMove,
		X:     100,
		XSet:  true,
		Z:     5000000,
		ZSet:  true,
		H1:    1e15,
		H1Set: true,
		H2:    20,
		H2Set: true,
	}
	err := c.Dispatch(cmd)
	if !errors.Is(err, kinematics.ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}
	if rec[standalone.AxisH1].pos != 0 {
		t.Errorf("Expected h1 untouched, got %d", rec[standalone.AxisH1].pos)
	}
	if rec[standalone.AxisH2].pos != 20 || rec[standalone.AxisX].pos != 100 {
		t.Errorf("Expected h2 and x to move, got h2=%d x=%d", rec[standalone.AxisH2].pos, rec[standalone.AxisX].pos)
	}
	if rec[standalone.AxisZ].pos == 0 {
		t.Error("Expected Z to move after a rejected head angle")
	}
	for _, ev := range *events {
		if ev == "start h1" {
			t.Errorf("Rejected head was started: %v", *events)
		}
	}
}

func TestDispatchRejectsStepOverflow(t *testing.T) {
	c, rec, events := newRecordingCoordinator(t)

	cmd := &standalone.Command{Kind: standalone.CmdMove, H1: 5000000000, H1Set: true, Z: 5000000, ZSet: true}
	if err := c.Dispatch(cmd); !errors.Is(err, ErrTooManySteps) {
		t.Errorf("Expected ErrTooManySteps, got %v", err)
	}
	if rec[standalone.AxisH1].pos != 0 || rec[standalone.AxisZ].pos != 0 {
		t.Errorf("Expected no motion, got h1=%d z=%d", rec[standalone.AxisH1].pos, rec[standalone.AxisZ].pos)
	}
	if len(*events) != 0 {
		t.Errorf("Expected no tasks, got %v", *events)
	}
}

func TestMoveHeadLimit(t *testing.T) {
	r := newRig(t, sim.DefaultLayout())

	err := r.coord.MoveHead(standalone.AxisH2, -config.HeadLimit-1)
	if !errors.Is(err, kinematics.ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}
	if p := r.m.Pulses("h2"); p != 0 {
		t.Errorf("Rejected head move emitted %d steps", p)
	}
	if err := r.coord.MoveHead(standalone.AxisH2, -config.HeadLimit); err != nil {
		t.Errorf("MoveHead at the limit failed: %v", err)
	}
}

func TestDispatchWithoutMotion(t *testing.T) {
	c, _, events := newRecordingCoordinator(t)
	if err := c.Dispatch(&standalone.Command{Kind: standalone.CmdMove}); err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}
	if len(*events) != 0 {
		t.Errorf("Expected no tasks, got %v", *events)
	}
}

func TestSetPowerRejectsBusyAxis(t *testing.T) {
	c, rec, _ := newRecordingCoordinator(t)
	rec[standalone.AxisH2].busy = true

	if err := c.SetPower(standalone.PowerHeads, true); !errors.Is(err, ErrAxisBusy) {
		t.Errorf("Expected ErrAxisBusy, got %v", err)
	}
	if c.PowerOn(standalone.PowerHeads) {
		t.Error("Stage switched while an axis was moving")
	}
	if err := c.SetPower(standalone.PowerX, true); err != nil {
		t.Errorf("Other stages should switch: %v", err)
	}
}

func TestNewCoordinatorRequiresAllAxes(t *testing.T) {
	cfg := config.DefaultPnPConfig()
	_, err := NewCoordinator(cfg, kinematics.NewCam(5), make([]Axis, 3), nil, nil)
	if !errors.Is(err, ErrNoAxis) {
		t.Errorf("Expected ErrNoAxis, got %v", err)
	}
}
