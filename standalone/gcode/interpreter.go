package gcode

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopnp/core"
	"gopnp/standalone"
)

// ErrUnknownSensor is returned by M105 for an unmapped N value
var ErrUnknownSensor = errors.New("unknown sensor")

// Motion is the machine motion interface used by the interpreter
type Motion interface {
	Dispatch(cmd *standalone.Command) error
	Home() error
	Position() standalone.Position
}

// Actuators is the pneumatic output and sensor interface
type Actuators interface {
	Apply(targets standalone.ActuateTarget, on bool, report func(error))
	Read(sensor int) (int32, error)
}

// Interpreter executes parsed lines and writes the acknowledgements
// expected by host tooling.
type Interpreter struct {
	motion    Motion
	actuators Actuators
	out       io.Writer
	log       core.Logger
}

// NewInterpreter creates an interpreter writing to out
func NewInterpreter(motion Motion, actuators Actuators, out io.Writer, log core.Logger) *Interpreter {
	if log == nil {
		log = core.NopLogger{}
	}
	return &Interpreter{
		motion:    motion,
		actuators: actuators,
		out:       out,
		log:       log,
	}
}

// Execute acknowledges a line and, if it parsed, runs its command.
// perr is the error returned by the parser for the line.
func (interp *Interpreter) Execute(line *Line, perr error) error {
	fmt.Fprintf(interp.out, "GCODE: %s\n", line.Text)
	for _, tok := range line.Tokens {
		fmt.Fprintf(interp.out, "gcode_command: value %.3f\n", tok.Value)
	}

	if perr != nil {
		interp.log.Warnf("%q: %v", line.Text, perr)
		fmt.Fprintf(interp.out, "Fatal error.\n")
		fmt.Fprintf(interp.out, "OK\n")
		fmt.Fprintf(interp.out, "COMPLETE\n")
		return perr
	}
	fmt.Fprintf(interp.out, "OK\n")

	err := interp.run(&line.Command)
	if err != nil {
		interp.log.Warnf("%q: %v", line.Text, err)
		interp.reportErr(err)
	}

	fmt.Fprintf(interp.out, "COMPLETE\n")
	return err
}

func (interp *Interpreter) run(cmd *standalone.Command) error {
	switch cmd.Kind {
	case standalone.CmdMove:
		return interp.motion.Dispatch(cmd)

	case standalone.CmdHome:
		return interp.motion.Home()

	case standalone.CmdActuate:
		interp.actuators.Apply(cmd.Actuate, cmd.ActuateValue, interp.reportErr)

	case standalone.CmdSensorRead:
		return interp.sensorRead(cmd.SensorTarget)

	case standalone.CmdPosition:
		pos := interp.motion.Position()
		interp.reportf("ok X:%d Y:%d Z:%d I:%d J:%d", pos.X, pos.Y, pos.Z, pos.H1, pos.H2)
	}
	return nil
}

var sensorLabels = map[int]string{
	standalone.SensorPart1:    "V",
	standalone.SensorPart2:    "W",
	standalone.SensorPressure: "P",
}

func (interp *Interpreter) sensorRead(target int) error {
	label, ok := sensorLabels[target]
	if !ok {
		return ErrUnknownSensor
	}
	val, err := interp.actuators.Read(target)
	if err != nil {
		return err
	}
	interp.reportf("ok %s:%d", label, val)
	return nil
}

func (interp *Interpreter) reportf(format string, args ...interface{}) {
	fmt.Fprintf(interp.out, format+"\n", args...)
}

// reportErr writes one ERR line per joined error
func (interp *Interpreter) reportErr(err error) {
	for _, msg := range strings.Split(err.Error(), "\n") {
		interp.reportf("ERR: %s", msg)
	}
}
