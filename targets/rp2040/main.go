//go:build rp2040

package main

import (
	"machine"
	"time"

	"gopnp/core"
	"gopnp/protocol"
	"gopnp/standalone/config"
	"gopnp/standalone/controller"
	"gopnp/targets/pio"
)

// stepPins[n] is the step output of channel n
var stepPins = []machine.Pin{
	machine.GPIO2, machine.GPIO3, machine.GPIO4, machine.GPIO5, machine.GPIO6,
}

// Bytes from the USB reader goroutine to the control loop
var inputBuffer *protocol.FifoBuffer

func main() {
	// Disable watchdog on boot to clear any previous state
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	// machine.Serial is USB CDC; descriptors come from the runtime
	if err := machine.Serial.Configure(machine.UARTConfig{}); err != nil {
		return
	}
	InitDebugUART()
	log := newLogger(false)
	log.Infof("gopnp %s", protocol.Version)

	cfg := config.DefaultRP2040Config()

	steps := pio.NewStepGen(stepPins)
	for _, axis := range cfg.Axes {
		var mask core.ChannelMask
		for _, ch := range axis.Channels {
			mask |= core.Channel(uint8(ch))
		}
		if err := steps.Attach(mask); err != nil {
			log.Errorf("step channels %v: %v", axis.Channels, err)
			halt()
		}
	}
	go steps.Poll(20 * time.Microsecond)

	manager := controller.NewManagerWithConfig(cfg)
	err = manager.Initialize(controller.Options{
		GPIO:     NewRPGPIODriver(),
		Steps:    steps,
		Random:   core.RandomFunc(machine.GetRNG),
		Pressure: initPressure(),
		Log:      log,
	})
	if err != nil {
		log.Errorf("initialize: %v", err)
		halt()
	}

	inputBuffer = protocol.NewFifoBuffer(protocol.RxRingSize)
	go usbReaderLoop(log)

	// A homing failure leaves the machine idle but still answering
	if err := manager.Start(); err != nil {
		log.Errorf("startup: %v", err)
		if manager.Coordinator().Halted() {
			steps.Stop()
		}
	}
	writeOutput(manager, log)

	buf := make([]byte, 64)
	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("control loop: %v", r)
					inputBuffer.Reset()
				}
			}()

			n := inputBuffer.Read(buf)
			for _, b := range buf[:n] {
				if err := manager.ProcessByte(b); err != nil {
					log.Debugf("command: %v", err)
				}
				writeOutput(manager, log)
			}
		}()

		// Yield to the axis workers and the USB reader
		time.Sleep(10 * time.Microsecond)
	}
}

// usbReaderLoop runs in a goroutine to continuously read USB data
func usbReaderLoop(log core.Logger) {
	// Recover from panics to prevent a firmware crash
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("usb reader: %v", r)
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop(log)
		}
	}()

	for {
		if machine.Serial.Buffered() > 0 {
			data, err := machine.Serial.ReadByte()
			if err != nil {
				log.Debugf("usb read: %v", err)
				time.Sleep(1 * time.Millisecond)
				continue
			}

			for inputBuffer.Write([]byte{data}) == 0 {
				// Control loop is busy with a move; the host waits for
				// COMPLETE so the buffer drains before it overflows
				time.Sleep(1 * time.Millisecond)
			}
			continue
		}
		// Yield to avoid a busy loop
		time.Sleep(100 * time.Microsecond)
	}
}

// writeOutput sends pending responses, handling partial writes
func writeOutput(m *controller.Manager, log core.Logger) {
	result := m.GetOutput()
	written := 0
	for written < len(result) {
		n, err := machine.Serial.Write(result[written:])
		if err != nil || n == 0 {
			// Host gone; drop the response
			log.Debugf("usb write: %v", err)
			return
		}
		written += n
	}
}

// halt blinks the LED forever after a configuration error
func halt() {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		led.High()
		time.Sleep(100 * time.Millisecond)
		led.Low()
		time.Sleep(100 * time.Millisecond)
	}
}
