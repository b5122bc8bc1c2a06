// Package controller assembles the pick-and-place controller: axes,
// power stages, homing, motion coordination, actuators and the command
// line interface.
package controller

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"gopnp/core"
	"gopnp/standalone"
	"gopnp/standalone/actuator"
	"gopnp/standalone/config"
	"gopnp/standalone/gcode"
	"gopnp/standalone/homing"
	"gopnp/standalone/kinematics"
	"gopnp/standalone/planner"
	"gopnp/standalone/stepgen"
)

// Options holds the hardware collaborators of the controller
type Options struct {
	GPIO     core.GPIODriver
	Steps    core.StepGenerator
	Random   core.RandomSource   // may be nil; Z homing then searches forward first
	Pressure core.PressureSensor // may be nil
	Sleep    func(time.Duration) // settle delays, time.Sleep if nil
	Log      core.Logger
}

// Manager coordinates all controller components. It is driven from a
// single control task through ProcessByte or ProcessLine.
type Manager struct {
	config      *standalone.MachineConfig
	parser      *gcode.Parser
	interpreter *gcode.Interpreter
	coord       *planner.Coordinator
	homer       *homing.Homer
	actuators   *actuator.Bank
	axes        []*stepgen.Axis
	log         core.Logger

	outputBuffer bytes.Buffer

	// Status
	initialized bool
	running     bool
}

// NewManager creates a new manager from a JSON configuration
func NewManager(configData []byte) (*Manager, error) {
	cfg, err := config.LoadConfig(configData)
	if err != nil {
		return nil, err
	}
	return NewManagerWithConfig(cfg), nil
}

// NewManagerWithConfig creates a manager with an existing config
func NewManagerWithConfig(cfg *standalone.MachineConfig) *Manager {
	return &Manager{
		config: cfg,
		parser: gcode.NewParser(),
		log:    core.NopLogger{},
	}
}

// Initialize sets up all components and starts the axis workers
func (m *Manager) Initialize(opts Options) error {
	if m.initialized {
		return errors.New("already initialized")
	}
	if opts.GPIO == nil || opts.Steps == nil {
		return errors.New("gpio driver and step generator required")
	}
	if opts.Log != nil {
		m.log = opts.Log
	}

	axes := make([]planner.Axis, standalone.NumAxes)
	for id := standalone.AxisID(0); id < standalone.NumAxes; id++ {
		a, err := stepgen.NewAxisFromConfig(id.String(), m.config.Axes[id.String()], opts.GPIO, opts.Steps, m.log)
		if err != nil {
			m.closeAxes()
			return err
		}
		m.axes = append(m.axes, a)
		axes[id] = a
	}

	stages := make([]*planner.Stage, standalone.NumPowerStages)
	for s := standalone.PowerStage(0); s < standalone.NumPowerStages; s++ {
		stage, err := planner.NewStage(s.String(), m.config.Power[s.String()], opts.GPIO, opts.Sleep)
		if err != nil {
			m.closeAxes()
			return err
		}
		stages[s] = stage
	}

	coord, err := planner.NewCoordinator(m.config, kinematics.NewCam(m.config.CamRadius), axes, stages, m.log)
	if err != nil {
		m.closeAxes()
		return err
	}
	m.coord = coord
	m.homer = homing.NewHomer(m.config, opts.Random, m.log)

	m.actuators, err = actuator.NewBank(m.config.Actuators, opts.GPIO, actuator.Options{
		Power:    coord,
		Pressure: opts.Pressure,
		Sleep:    opts.Sleep,
		Log:      m.log,
	})
	if err != nil {
		m.closeAxes()
		return err
	}

	m.interpreter = gcode.NewInterpreter(motion{m}, m.actuators, &m.outputBuffer, m.log)
	m.initialized = true
	return nil
}

// motion adapts the coordinator to the interpreter
type motion struct {
	m *Manager
}

func (mo motion) Dispatch(cmd *standalone.Command) error {
	return mo.m.coord.Dispatch(cmd)
}

func (mo motion) Home() error {
	return mo.m.coord.Home(mo.m.homer)
}

func (mo motion) Position() standalone.Position {
	return mo.m.coord.Position()
}

// Start powers the X, Y and Z stages and homes the machine. A homing
// failure aborts the sequence and leaves the machine powered and idle.
func (m *Manager) Start() error {
	if !m.initialized {
		return errors.New("manager not initialized")
	}

	for _, s := range []standalone.PowerStage{standalone.PowerX, standalone.PowerY, standalone.PowerZ} {
		if err := m.coord.SetPower(s, true); err != nil {
			return err
		}
	}

	m.running = true
	if err := m.coord.Home(m.homer); err != nil {
		m.log.Errorf("startup aborted: %v", err)
		m.SendResponse(fmt.Sprintf("ERR: homing: %v\n", err))
		return err
	}

	m.log.Infof("%s ready", m.config.Name)
	m.SendResponse("PnP ready\n")
	return nil
}

// ProcessLine executes one line without its terminator
func (m *Manager) ProcessLine(text string) error {
	if !m.initialized {
		return errors.New("manager not initialized")
	}
	line, perr := m.parser.ParseLine(text)
	return m.interpreter.Execute(line, perr)
}

// ProcessByte processes a single byte of input (for serial streaming)
func (m *Manager) ProcessByte(b byte) error {
	if !m.initialized {
		return errors.New("manager not initialized")
	}
	line, done, perr := m.parser.Feed(b)
	if !done {
		return nil
	}
	return m.interpreter.Execute(line, perr)
}

// SendResponse queues a response to be sent to the host
func (m *Manager) SendResponse(response string) {
	m.outputBuffer.WriteString(response)
}

// GetOutput returns any pending output and clears the buffer
func (m *Manager) GetOutput() []byte {
	if m.outputBuffer.Len() == 0 {
		return nil
	}

	output := make([]byte, m.outputBuffer.Len())
	copy(output, m.outputBuffer.Bytes())
	m.outputBuffer.Reset()
	return output
}

// Coordinator returns the motion coordinator
func (m *Manager) Coordinator() *planner.Coordinator {
	return m.coord
}

// Actuators returns the actuator bank
func (m *Manager) Actuators() *actuator.Bank {
	return m.actuators
}

// IsRunning returns whether the manager has been started
func (m *Manager) IsRunning() bool {
	return m.running
}

// Stop switches off every power stage and stops the axis workers
func (m *Manager) Stop() {
	m.running = false
	if m.coord != nil {
		for s := standalone.PowerStage(0); s < standalone.NumPowerStages; s++ {
			if err := m.coord.SetPower(s, false); err != nil {
				m.log.Warnf("power %s off: %v", s, err)
			}
		}
	}
	m.closeAxes()
	m.initialized = false
}

func (m *Manager) closeAxes() {
	for _, a := range m.axes {
		a.Close()
	}
	m.axes = nil
}
