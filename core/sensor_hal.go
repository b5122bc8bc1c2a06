package core

import "errors"

// ErrNoPressure is returned when no pressure sensor is fitted
var ErrNoPressure = errors.New("no pressure sensor")

// PressureSensor reads an absolute pressure (Pa). Used to check vacuum
// on the placement heads when the board carries a pressure sensor.
type PressureSensor interface {
	ReadPressure() (int32, error)
}
