package kinematics

// Kinematics converts a nozzle displacement into a motor target
type Kinematics interface {
	// Translate converts a signed linear offset from home (nanometers)
	// into a signed motor angle (micro-degrees)
	Translate(offsetNM int64) (int64, error)

	// Limit returns the largest offset (nanometers) Translate accepts
	Limit() int64
}

// AngleToSteps converts an angle to the nearest whole number of steps
func AngleToSteps(angle, stepUnit int64) int64 {
	if stepUnit <= 0 {
		return 0
	}
	half := stepUnit / 2
	if angle < 0 {
		return -((-angle + half) / stepUnit)
	}
	return (angle + half) / stepUnit
}
