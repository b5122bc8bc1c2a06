package stepgen

import (
	"errors"
	"sync"
	"testing"
	"time"

	"gopnp/core"
)

// fakeMotor is a step generator, direction input and home sensor for
// one axis. Steps complete asynchronously like a timer interrupt.
type fakeMotor struct {
	mu       sync.Mutex
	forward  bool
	pos      int64
	homeAt   int64 // sensor is active at or below this position
	hasHome  bool
	freqs    []uint32
	handler  func()
	emitMask core.ChannelMask
	stall    bool
}

func (m *fakeMotor) SetDirection(forward bool) {
	m.mu.Lock()
	m.forward = forward
	m.mu.Unlock()
}

func (m *fakeMotor) AtHome() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos <= m.homeAt
}

func (m *fakeMotor) SetCompletionHandler(mask core.ChannelMask, fn func()) {
	m.handler = fn
}

func (m *fakeMotor) Emit(mask core.ChannelMask, freq uint32) {
	m.mu.Lock()
	m.emitMask = mask
	m.freqs = append(m.freqs, freq)
	if m.forward {
		m.pos++
	} else {
		m.pos--
	}
	stall := m.stall
	m.mu.Unlock()

	if !stall {
		go m.handler()
	}
}

func newTestAxis(m *fakeMotor) *Axis {
	opts := Options{
		Name:     "x",
		StepUnit: 6250,
		Mask:     core.Channel(1) | core.Channel(2),
		StepRate: 10,
		Dir:      m,
		Gen:      m,
	}
	if m.hasHome {
		opts.Home = m
	}
	return NewAxis(opts)
}

func TestAxisMoveUpdatesPosition(t *testing.T) {
	m := &fakeMotor{homeAt: -1 << 40}
	a := newTestAxis(m)
	defer a.Close()

	res, err := a.Move(MoveTask{Steps: 250, Forward: true, Speed: 100})
	if err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if res.Done != 250 || res.HomeFound {
		t.Errorf("Expected 250 steps without home, got %+v", res)
	}
	if a.Position() != 250 {
		t.Errorf("Expected position 250, got %d", a.Position())
	}

	res, _ = a.Move(MoveTask{Steps: 100, Forward: false, Speed: 100})
	if res.Done != 100 {
		t.Errorf("Expected 100 steps, got %d", res.Done)
	}
	if a.Position() != 150 {
		t.Errorf("Expected position 150, got %d", a.Position())
	}
	if m.pos != 150 {
		t.Errorf("Expected motor at 150, got %d", m.pos)
	}
	if a.State() != Idle {
		t.Errorf("Expected idle after Wait, got %s", a.State())
	}
	if a.Direction() {
		t.Error("Expected last direction reverse")
	}
}

func TestAxisEmitsOnItsChannels(t *testing.T) {
	m := &fakeMotor{homeAt: -1 << 40}
	a := newTestAxis(m)
	defer a.Close()

	if _, err := a.Move(MoveTask{Steps: 3, Forward: true, Speed: 40}); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if m.emitMask != core.Channel(1)|core.Channel(2) {
		t.Errorf("Unexpected mask %b", m.emitMask)
	}
	for _, f := range m.freqs {
		if f != 400 {
			t.Errorf("Expected 400 Hz without ramp, got %d", f)
		}
	}
}

func TestAxisRampedMove(t *testing.T) {
	m := &fakeMotor{homeAt: -1 << 40}
	a := newTestAxis(m)
	defer a.Close()

	if _, err := a.Move(MoveTask{Steps: 3000, Forward: true, Speed: 100, Ramp: true}); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if len(m.freqs) != 3000 {
		t.Fatalf("Expected 3000 pulses, got %d", len(m.freqs))
	}
	if m.freqs[0] != FloorSpeed*10 || m.freqs[2999] != FloorSpeed*10 {
		t.Errorf("Expected floor frequency at both ends, got %d and %d", m.freqs[0], m.freqs[2999])
	}
	if m.freqs[1500] != 1000 {
		t.Errorf("Expected cruise frequency 1000, got %d", m.freqs[1500])
	}
}

func TestAxisStopsAtHome(t *testing.T) {
	m := &fakeMotor{pos: 40, homeAt: 0, hasHome: true}
	a := newTestAxis(m)
	defer a.Close()

	res, err := a.Move(MoveTask{Steps: 1000, Forward: false, Speed: 50, CheckHome: true})
	if err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if !res.HomeFound {
		t.Fatal("Expected home to be found")
	}
	if res.Done != 40 {
		t.Errorf("Expected 40 steps before home, got %d", res.Done)
	}
	if a.Position() != -40 {
		t.Errorf("Expected position -40, got %d", a.Position())
	}
}

func TestAxisHomeCheckDisabled(t *testing.T) {
	m := &fakeMotor{pos: 5, homeAt: 0, hasHome: true}
	a := newTestAxis(m)
	defer a.Close()

	res, _ := a.Move(MoveTask{Steps: 20, Forward: false, Speed: 50})
	if res.HomeFound || res.Done != 20 {
		t.Errorf("Expected full move ignoring sensor, got %+v", res)
	}
}

func TestAxisZeroOnComplete(t *testing.T) {
	m := &fakeMotor{homeAt: -1 << 40}
	a := newTestAxis(m)
	defer a.Close()

	a.Move(MoveTask{Steps: 10, Forward: true, Speed: 50})
	a.Move(MoveTask{Steps: 5, Forward: true, Speed: 25, ZeroOnComplete: true})
	if a.Position() != 0 {
		t.Errorf("Expected position 0, got %d", a.Position())
	}
}

func TestAxisRejectsSecondTask(t *testing.T) {
	m := &fakeMotor{homeAt: -1 << 40, stall: true}
	a := newTestAxis(m)
	defer a.Close()

	if err := a.Start(MoveTask{Steps: 10, Forward: true, Speed: 50}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := a.Start(MoveTask{Steps: 10, Forward: true, Speed: 50}); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}
	if !a.Busy() {
		t.Error("Expected axis busy")
	}
}

func TestAxisStallsWithoutCompletion(t *testing.T) {
	m := &fakeMotor{homeAt: -1 << 40, stall: true}
	a := newTestAxis(m)
	defer a.Close()

	a.Start(MoveTask{Steps: 10, Forward: true, Speed: 50})

	done := make(chan struct{})
	go func() {
		a.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Task completed without step completions")
	case <-time.After(50 * time.Millisecond):
	}
	if a.Position() != 0 {
		t.Errorf("Position changed without completion: %d", a.Position())
	}
	if a.State() != Stepping {
		t.Errorf("Expected stepping, got %s", a.State())
	}
}

func TestAxisZeroSteps(t *testing.T) {
	m := &fakeMotor{homeAt: -1 << 40}
	a := newTestAxis(m)
	defer a.Close()

	res, err := a.Move(MoveTask{Steps: 0, Forward: true, Speed: 50})
	if err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if res.Done != 0 || len(m.freqs) != 0 {
		t.Errorf("Expected no pulses, got %d", len(m.freqs))
	}
}

func TestSignalSingleSlot(t *testing.T) {
	s := NewSignal()
	s.Post()
	s.Post()
	s.Wait()

	select {
	case <-s:
		t.Error("Second post should have been dropped")
	default:
	}
}
