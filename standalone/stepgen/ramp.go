package stepgen

const (
	// RampWindow is the number of steps over which a move accelerates
	// from, and decelerates to, FloorSpeed
	RampWindow = 1000

	// FloorSpeed is the lowest speed used; slower step rates stall the motor
	FloorSpeed = 25
)

// RampSpeed returns the speed for step i of a move of total steps. The
// profile is trapezoidal and symmetric about the midpoint of the move.
func RampSpeed(i, total uint32, base int) int {
	t := i
	if left := total - i; i < total && left < t {
		t = left
	}
	if t >= RampWindow {
		return base
	}
	speed := int(t) * base / RampWindow
	if speed < FloorSpeed {
		speed = FloorSpeed
	}
	return speed
}
