package standalone

// AxisID names one of the five motors
type AxisID int

const (
	AxisX AxisID = iota
	AxisY
	AxisZ
	AxisH1
	AxisH2
	NumAxes
)

var axisNames = [NumAxes]string{"x", "y", "z", "h1", "h2"}

func (a AxisID) String() string {
	if a < 0 || a >= NumAxes {
		return "?"
	}
	return axisNames[a]
}

// PowerStage names one of the motor driver power stages
type PowerStage int

const (
	PowerX PowerStage = iota
	PowerY
	PowerZ
	PowerHeads
	NumPowerStages
)

var powerNames = [NumPowerStages]string{"x", "y", "z", "heads"}

func (p PowerStage) String() string {
	if p < 0 || p >= NumPowerStages {
		return "?"
	}
	return powerNames[p]
}

// Axes returns the axes driven by the power stage
func (p PowerStage) Axes() []AxisID {
	switch p {
	case PowerX:
		return []AxisID{AxisX}
	case PowerY:
		return []AxisID{AxisY}
	case PowerZ:
		return []AxisID{AxisZ}
	case PowerHeads:
		return []AxisID{AxisH1, AxisH2}
	}
	return nil
}

// AxisConfig represents configuration for a single axis
type AxisConfig struct {
	Channels    []int  // Step generator channels driven in lockstep
	DirPin      string // GPIO pin for direction
	InvertDir   bool   // Invert direction signal
	HomePin     string // GPIO pin for the home sensor, empty if none
	InvertHome  bool   // Sensor reads low when at home
	HomeForward bool   // Home sensor lies in the forward direction
	StepUnit    int64  // nm (X/Y) or micro-degrees (Z, heads) per step
	MaxTravel   int64  // Travel limit in the same units as StepUnit
	Speed       int    // Base speed for moves
	HomingSpeed int    // Speed while seeking the home sensor
	CreepSpeed  int    // Speed for the final creep onto the sensor
	StepRate    uint32 // Pulse frequency (Hz) per unit of speed
}

// PowerConfig describes the enable lines of one driver power stage.
// Pins are switched on in order with Settle milliseconds between them.
type PowerConfig struct {
	Pins     []string
	Invert   bool
	SettleMS int
}

// HomingConfig holds the homing search parameters
type HomingConfig struct {
	BackoffMM     float64 // Reverse travel when starting on the sensor (X/Y)
	CreepMM       float64 // Travel past the sensor edge (X/Y)
	ZBackoffSteps uint32  // Reverse travel when Z starts on the sensor
	ZCreepSteps   uint32  // Z travel past the sensor edge
	ZFirstBudget  uint32  // Steps in the first Z search attempt
	ZBudgetStep   uint32  // Steps added on every further attempt
	ZMaxAttempts  int     // Attempt ceiling for the Z search
}

// ActuatorConfig maps the pneumatic outputs and their sensors to pins
type ActuatorConfig struct {
	Pump        string
	Vacuum1     string
	Vacuum2     string
	Needle      string
	NeedleSense string // high while the needle is down
	Peel        string
	Part1       string // low while head 1 holds a part
	Part2       string // low while head 2 holds a part
}

// MachineConfig represents the complete machine configuration
type MachineConfig struct {
	Name      string
	Axes      map[string]AxisConfig  // "x", "y", "z", "h1", "h2"
	Power     map[string]PowerConfig // "x", "y", "z", "heads"
	Actuators ActuatorConfig
	Homing    HomingConfig

	CamRadius float64 // Z cam radius (mm)
}

// Position is the machine position: X/Y/Z in nanometers, heads in
// micro-degrees
type Position struct {
	X, Y, Z, H1, H2 int64
}

// CommandKind is the action selected by a command line
type CommandKind int

const (
	CmdNone CommandKind = iota
	CmdMove
	CmdActuate
	CmdSensorRead
	CmdHome
	CmdPosition
)

// ActuateTarget is a set of pneumatic outputs
type ActuateTarget uint8

const (
	TargetPump ActuateTarget = 1 << iota
	TargetVacuum1
	TargetVacuum2
	TargetNeedle
	TargetPeel
)

// AllTargets lists the actuate targets in the order they are applied
var AllTargets = []ActuateTarget{TargetPump, TargetVacuum1, TargetVacuum2, TargetNeedle, TargetPeel}

// Has reports whether t contains target
func (t ActuateTarget) Has(target ActuateTarget) bool {
	return t&target != 0
}

// Sensor channels for SensorRead
const (
	SensorPart1    = 1
	SensorPart2    = 2
	SensorPressure = 3
)

// Command is one parsed protocol line. Linear targets are nanometers,
// rotational targets (heads) are micro-degrees.
type Command struct {
	Kind CommandKind

	X, Y, Z, H1, H2                int64
	XSet, YSet, ZSet, H1Set, H2Set bool

	Actuate      ActuateTarget
	ActuateValue bool

	SensorTarget int
}

// HasMotion reports whether any axis target is set
func (c *Command) HasMotion() bool {
	return c.XSet || c.YSet || c.ZSet || c.H1Set || c.H2Set
}
