package core

import (
	"errors"
	"strconv"
	"strings"
)

// ErrUnknownPin is returned when a pin name cannot be resolved
var ErrUnknownPin = errors.New("unknown pin")

// pinsPerPort is the number of pins in one lettered GPIO port (PA0..PA15)
const pinsPerPort = 16

// LookupPin resolves a pin name to a GPIOPin.
// Accepted forms are "gpioN" (flat numbering, e.g. RP2040) and
// "PXn" (lettered ports, e.g. "PE5" = port E pin 5 = 4*16+5).
func LookupPin(name string) (GPIOPin, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	switch {
	case strings.HasPrefix(n, "GPIO"):
		num, err := strconv.ParseUint(n[4:], 10, 8)
		if err != nil {
			return 0, errors.Join(ErrUnknownPin, err)
		}
		return GPIOPin(num), nil
	case len(n) >= 3 && n[0] == 'P' && n[1] >= 'A' && n[1] <= 'K':
		num, err := strconv.ParseUint(n[2:], 10, 8)
		if err != nil || num >= pinsPerPort {
			return 0, ErrUnknownPin
		}
		return GPIOPin(uint32(n[1]-'A')*pinsPerPort + uint32(num)), nil
	}
	return 0, ErrUnknownPin
}

// PinName returns the lettered-port name of a pin ("PE5")
func PinName(pin GPIOPin) string {
	port := byte('A' + pin/pinsPerPort)
	return "P" + string(port) + strconv.Itoa(int(pin%pinsPerPort))
}
