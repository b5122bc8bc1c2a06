package main

import (
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"gopnp/core"
	"gopnp/host/serial"
	"gopnp/host/sim"
	"gopnp/protocol"
	"gopnp/standalone"
	"gopnp/standalone/config"
	"gopnp/standalone/controller"
)

var (
	configFile = flag.String("config", "", "Machine configuration (JSON), built-in default if empty")
	layoutFile = flag.String("layout", "", "Simulator layout (INI), built-in default if empty")
	device     = flag.String("device", "", "Serial device to serve, stdin/stdout if empty")
	baud       = flag.Int("baud", serial.DefaultBaud, "Baud rate")
	poll       = flag.Duration("poll", time.Millisecond, "Receive ring poll interval")
	verbose    = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	log := logrus.NewEntry(logger).WithField("component", "pnp-sim")
	log.WithField("version", protocol.Version).Info("starting")

	if err := run(log); err != nil {
		log.Fatal(err)
	}
}

func run(log *logrus.Entry) error {
	cfg, err := loadConfig(*configFile)
	if err != nil {
		return err
	}

	layout := sim.DefaultLayout()
	if *layoutFile != "" {
		if layout, err = sim.LoadLayout(*layoutFile); err != nil {
			return err
		}
	}

	machine, err := sim.NewFromConfig(cfg, layout)
	if err != nil {
		return errors.Wrap(err, "build simulated machine")
	}

	var pressure core.PressureSensor
	if machine.HasPressure() {
		pressure = machine
	}

	mgr := controller.NewManagerWithConfig(cfg)
	err = mgr.Initialize(controller.Options{
		GPIO:     machine,
		Steps:    machine,
		Random:   machine,
		Pressure: pressure,
		Log:      log.WithField("machine", cfg.Name),
	})
	if err != nil {
		return errors.Wrap(err, "initialize controller")
	}
	defer mgr.Stop()

	in, out, err := openStream(*device, *baud)
	if err != nil {
		return err
	}

	uart := sim.NewUART(protocol.RxRingSize)
	reader := protocol.NewRingReader(uart)

	eof := make(chan error, 1)
	go func() {
		_, err := io.Copy(uart, in)
		eof <- err
	}()

	flush := func() {
		if output := mgr.GetOutput(); output != nil {
			if _, err := out.Write(output); err != nil {
				log.Warnf("write: %v", err)
			}
		}
	}

	if err := mgr.Start(); err != nil {
		log.Warnf("homing failed, motion disabled: %v", err)
	}
	flush()

	process := func(p []byte) {
		for _, b := range p {
			if err := mgr.ProcessByte(b); err != nil {
				log.Debugf("command: %v", err)
			}
			flush()
		}
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(*poll)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			reader.Drain(process)
		case err := <-eof:
			reader.Drain(process)
			if err != nil {
				return errors.Wrap(err, "read input")
			}
			return nil
		case s := <-sigs:
			log.Infof("%v, shutting down", s)
			return nil
		}
	}
}

func loadConfig(file string) (*standalone.MachineConfig, error) {
	if file == "" {
		return config.DefaultPnPConfig(), nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	cfg, err := config.LoadConfig(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", file)
	}
	return cfg, nil
}

func openStream(dev string, rate int) (io.Reader, io.Writer, error) {
	if dev == "" {
		return os.Stdin, os.Stdout, nil
	}
	cfg := serial.DefaultConfig(dev)
	cfg.Baud = rate
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return port, port, nil
}
