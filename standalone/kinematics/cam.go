package kinematics

import (
	"errors"
	"math"
)

// ErrOutOfRange is returned for offsets beyond a kinematic limit
var ErrOutOfRange = errors.New("offset out of range")

const (
	nmPerMM     = 1000000.0
	microPerDeg = 1000000.0
)

// Cam models the nozzle lift cam: a follower on a cam of the given radius
// travels 2*radius while the motor turns through 180 degrees.
type Cam struct {
	RadiusMM float64
}

// NewCam creates the cam kinematics for a cam radius in millimeters
func NewCam(radiusMM float64) *Cam {
	return &Cam{RadiusMM: radiusMM}
}

func (c *Cam) Translate(offsetNM int64) (int64, error) {
	return TranslateZ(offsetNM, c.RadiusMM)
}

func (c *Cam) Limit() int64 {
	return int64(2 * c.RadiusMM * nmPerMM)
}

// TranslateZ converts a signed offset from home (nanometers) into a signed
// motor angle in micro-degrees. Zero offset is zero angle, an offset of
// one radius is 90 degrees and two radii is 180 degrees.
func TranslateZ(offsetNM int64, camRadiusMM float64) (int64, error) {
	if camRadiusMM <= 0 {
		return 0, ErrOutOfRange
	}

	mag := math.Abs(float64(offsetNM)) / nmPerMM
	if mag > 2*camRadiusMM {
		return 0, ErrOutOfRange
	}

	val := mag/camRadiusMM - 1
	// Keep asin defined at the range ends
	val = math.Max(-1, math.Min(1, val))

	deg := 90 + math.Asin(val)*180/math.Pi
	angle := int64(math.Round(deg * microPerDeg))
	if offsetNM < 0 {
		angle = -angle
	}
	return angle, nil
}
