package sim

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopnp/core"
	"gopnp/standalone/config"
)

func TestEmitFollowsDirectionPin(t *testing.T) {
	m := NewMachine(1)
	m.AddMotor(&Motor{Name: "y", Mask: core.Channel(1) | core.Channel(2), DirPin: 7})
	m.ConfigureOutput(7)

	done := make(chan struct{}, 16)
	m.SetCompletionHandler(core.Channel(1)|core.Channel(2), func() { done <- struct{}{} })

	m.SetPin(7, true)
	for i := 0; i < 5; i++ {
		m.Emit(core.Channel(1)|core.Channel(2), 1000)
		<-done
	}
	m.SetPin(7, false)
	m.Emit(core.Channel(1)|core.Channel(2), 1000)
	<-done

	if pos := m.MotorPosition("y"); pos != 4 {
		t.Errorf("Expected position 4, got %d", pos)
	}
	if p := m.Pulses("y"); p != 6 {
		t.Errorf("Expected 6 pulses, got %d", p)
	}
}

func TestEmitIgnoresOtherChannels(t *testing.T) {
	m := NewMachine(1)
	m.AddMotor(&Motor{Name: "x", Mask: core.Channel(0), DirPin: 5})
	m.Emit(core.Channel(3), 100)
	if pos := m.MotorPosition("x"); pos != 0 {
		t.Errorf("Expected x untouched, got %d", pos)
	}
}

func TestCompletionIsAsynchronous(t *testing.T) {
	m := NewMachine(1)
	m.StepDelay = 20 * time.Millisecond
	m.AddMotor(&Motor{Name: "x", Mask: core.Channel(0), DirPin: 5})

	done := make(chan struct{}, 1)
	m.SetCompletionHandler(core.Channel(0), func() { done <- struct{}{} })

	start := time.Now()
	m.Emit(core.Channel(0), 100)
	if time.Since(start) >= m.StepDelay {
		t.Error("Emit blocked for the pulse")
	}
	<-done
}

func TestSensorWindow(t *testing.T) {
	m := NewMachine(1)
	m.AddMotor(&Motor{Name: "z", Mask: core.Channel(3), DirPin: 9})
	m.AddSensor(&Sensor{Pin: 20, Motor: "z", Low: -2, High: 2})
	m.AddSensor(&Sensor{Pin: 21, Motor: "z", Low: -2, High: 2, Invert: true})

	tests := []struct {
		pos    int64
		active bool
	}{
		{-3, false}, {-2, true}, {0, true}, {2, true}, {3, false},
	}
	for _, test := range tests {
		m.SetMotorPosition("z", test.pos)
		if got := m.ReadPin(20); got != test.active {
			t.Errorf("pos %d: expected %v, got %v", test.pos, test.active, got)
		}
		if got := m.ReadPin(21); got == test.active {
			t.Errorf("pos %d: inverted sensor read %v", test.pos, got)
		}
	}
}

func TestLinkedInput(t *testing.T) {
	m := NewMachine(1)
	m.ConfigureOutput(1)
	m.ConfigureInput(2)
	m.Link(2, 1, false)

	m.SetPin(1, true)
	if v, _ := m.GetPin(2); !v {
		t.Error("Expected linked input high")
	}
	m.SetPin(1, false)
	if m.ReadPin(2) {
		t.Error("Expected linked input low")
	}
}

func TestPinModes(t *testing.T) {
	m := NewMachine(1)
	if err := m.SetPin(3, true); !errors.Is(err, ErrPinNotConfigured) {
		t.Errorf("Expected ErrPinNotConfigured, got %v", err)
	}
	m.ConfigureInput(3)
	if err := m.ConfigureOutput(3); !errors.Is(err, ErrPinMode) {
		t.Errorf("Expected ErrPinMode, got %v", err)
	}
	if err := m.SetPin(3, true); !errors.Is(err, ErrPinNotConfigured) {
		t.Errorf("Expected ErrPinNotConfigured for input, got %v", err)
	}
	_, err := m.GetPin(4)
	if !errors.Is(err, ErrPinNotConfigured) {
		t.Errorf("Expected ErrPinNotConfigured, got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "PA4") {
		t.Errorf("Expected pin name in %q", err)
	}
}

func TestRandomRetry(t *testing.T) {
	m := NewMachine(42)
	m.FailRandom(3)
	if _, err := core.Random(m); err != nil {
		t.Errorf("Expected recovery after transient failures, got %v", err)
	}

	m.FailRandom(1000)
	if _, err := core.Random(m); !errors.Is(err, core.ErrRandomUnavailable) {
		t.Errorf("Expected ErrRandomUnavailable, got %v", err)
	}
}

func TestPressure(t *testing.T) {
	m := NewMachine(1)
	if _, err := m.ReadPressure(); !errors.Is(err, core.ErrNoPressure) {
		t.Errorf("Expected core.ErrNoPressure, got %v", err)
	}
	m.SetPressure(98000)
	if p, err := m.ReadPressure(); err != nil || p != 98000 {
		t.Errorf("Expected 98000, got %d (%v)", p, err)
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.DefaultPnPConfig()
	m, err := NewFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}

	if pos := m.MotorPosition("x"); pos != 4000 {
		t.Errorf("Expected x to start at 4000, got %d", pos)
	}

	home, _ := core.LookupPin(cfg.Axes["x"].HomePin)
	if m.ReadPin(home) {
		t.Error("Expected x home sensor clear at start")
	}
	m.SetMotorPosition("x", 0)
	if !m.ReadPin(home) {
		t.Error("Expected x home sensor active at 0")
	}

	needle, _ := core.LookupPin(cfg.Actuators.Needle)
	sense, _ := core.LookupPin(cfg.Actuators.NeedleSense)
	m.ConfigureOutput(needle)
	m.SetPin(needle, true)
	if !m.ReadPin(sense) {
		t.Error("Expected needle sense to follow the needle")
	}

	part1, _ := core.LookupPin(cfg.Actuators.Part1)
	if !m.ReadPin(part1) {
		t.Error("Expected empty head to read high")
	}
}

func TestLoadLayout(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sim.conf")
	data := "[sim]\nseed=7\nstep-delay=50us\npressure=98000\n[x]\nstart=1234\nhome=-50,0\n[z]\nstart=-250\n"
	if err := os.WriteFile(file, []byte(data), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	l, err := LoadLayout(file)
	if err != nil {
		t.Fatalf("LoadLayout failed: %v", err)
	}
	if l.Seed != 7 {
		t.Errorf("Expected seed 7, got %d", l.Seed)
	}
	if l.StepDelay != 50*time.Microsecond {
		t.Errorf("Expected 50us step delay, got %s", l.StepDelay)
	}
	if l.Pressure == nil || *l.Pressure != 98000 {
		t.Errorf("Expected pressure 98000, got %v", l.Pressure)
	}
	x := l.Axes["x"]
	if x.Start != 1234 || x.Home == nil || x.Home.Low != -50 || x.Home.High != 0 {
		t.Errorf("Unexpected x layout %+v", x)
	}
	z := l.Axes["z"]
	if z.Start != -250 || z.Home == nil || z.Home.Low != -10 {
		t.Errorf("Expected z start overridden and default window kept, got %+v", z)
	}
}

func TestLoadLayoutMissingFile(t *testing.T) {
	if _, err := LoadLayout(filepath.Join(t.TempDir(), "none.conf")); err == nil {
		t.Error("Expected error for missing file")
	}
}
