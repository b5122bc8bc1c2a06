//go:build rp2040

package main

import (
	"machine"

	"tinygo.org/x/drivers/lps22hb"

	"gopnp/core"
)

// vacuumSensor reads the head vacuum line through an LPS22HB on I2C1
type vacuumSensor struct {
	dev lps22hb.Device
}

// initPressure configures I2C1 and probes the sensor. It returns nil
// when no sensor answers, so M105 N3 reports it as missing.
func initPressure() core.PressureSensor {
	bus := machine.I2C1
	err := bus.Configure(machine.I2CConfig{
		Frequency: 400000,
		SDA:       machine.GPIO26,
		SCL:       machine.GPIO27,
	})
	if err != nil {
		return nil
	}

	dev := lps22hb.New(bus)
	if !dev.Connected() {
		return nil
	}
	dev.Configure()
	return &vacuumSensor{dev: dev}
}

// ReadPressure returns the pressure in Pa
func (s *vacuumSensor) ReadPressure() (int32, error) {
	mpa, err := s.dev.ReadPressure()
	if err != nil {
		return 0, err
	}
	return mpa / 1000, nil
}
