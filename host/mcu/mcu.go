package mcu

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"gopnp/host/serial"
)

// Marker lines of the acknowledgement sequence
const (
	echoPrefix  = "GCODE: "
	valuePrefix = "gcode_command: value "
	okLine      = "OK"
	fatalLine   = "Fatal error."
	doneLine    = "COMPLETE"
	errPrefix   = "ERR: "
)

var (
	ErrNotConnected = errors.New("not connected to controller")
	ErrTimeout      = errors.New("timed out waiting for COMPLETE")
)

// Reply is the acknowledgement of one command line
type Reply struct {
	Echo   string   // line as received by the controller
	Values []string // per-token values
	Fatal  bool     // the line did not parse
	Output []string // command output between OK and COMPLETE
}

// Err returns the first ERR: line of the reply as an error
func (r *Reply) Err() error {
	if r.Fatal {
		return errors.Errorf("controller rejected %q", r.Echo)
	}
	for _, line := range r.Output {
		if strings.HasPrefix(line, errPrefix) {
			return errors.New(strings.TrimPrefix(line, errPrefix))
		}
	}
	return nil
}

// MCU is a connection to a pick-and-place controller speaking the line
// protocol. One command is in flight at a time.
type MCU struct {
	mu  sync.Mutex // one command in flight
	log *logrus.Entry

	connMu  sync.Mutex // guards the stream fields below
	port    io.ReadWriteCloser
	lines   chan string
	readErr chan error

	// Unsolicited lines (startup banner, homing errors) go here
	Notify func(line string)

	Timeout time.Duration
}

// NewMCU creates a new MCU instance (not yet connected)
func NewMCU(log *logrus.Entry) *MCU {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &MCU{
		log:     log,
		Timeout: 30 * time.Second,
	}
}

// Connect opens a serial device
func (m *MCU) Connect(device string) error {
	return m.ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig opens a serial device with a custom serial config
func (m *MCU) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return errors.Wrap(err, "open serial port")
	}
	m.Attach(port)
	return nil
}

// Attach starts reading replies from an already open stream
func (m *MCU) Attach(port io.ReadWriteCloser) {
	lines := make(chan string, 64)
	readErr := make(chan error, 1)

	m.connMu.Lock()
	m.port = port
	m.lines = lines
	m.readErr = readErr
	m.connMu.Unlock()

	go reader(port, lines, readErr)
}

// Close closes the connection. A Send in flight returns once the
// reader sees the closed stream.
func (m *MCU) Close() error {
	m.connMu.Lock()
	port := m.port
	m.port = nil
	m.connMu.Unlock()

	if port == nil {
		return nil
	}
	return port.Close()
}

// IsConnected returns whether a stream is attached
func (m *MCU) IsConnected() bool {
	port, _, _ := m.conn()
	return port != nil
}

func (m *MCU) conn() (io.Writer, <-chan string, <-chan error) {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	if m.port == nil {
		return nil, nil, nil
	}
	return m.port, m.lines, m.readErr
}

func reader(port io.Reader, lines chan<- string, readErr chan<- error) {
	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		lines <- strings.TrimRight(scanner.Text(), "\r")
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	readErr <- err
	close(lines)
}

// Send writes one command line and collects its reply up to COMPLETE
func (m *MCU) Send(line string) (*Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	port, lines, readErr := m.conn()
	if port == nil {
		return nil, ErrNotConnected
	}

	line = strings.TrimRight(line, "\r\n")
	m.log.Debugf("> %s", line)
	if _, err := io.WriteString(port, line+"\n"); err != nil {
		return nil, errors.Wrapf(err, "write %q", line)
	}

	reply := &Reply{}
	echoed := false
	timer := time.NewTimer(m.Timeout)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return reply, ErrTimeout
		case text, ok := <-lines:
			if !ok {
				var err error = io.EOF
				select {
				case err = <-readErr:
				default:
				}
				return reply, errors.Wrap(err, "read reply")
			}
			m.log.Debugf("< %s", text)

			switch {
			case !echoed && strings.HasPrefix(text, echoPrefix):
				reply.Echo = strings.TrimPrefix(text, echoPrefix)
				echoed = true
			case !echoed:
				m.notify(text)
			case strings.HasPrefix(text, valuePrefix):
				reply.Values = append(reply.Values, strings.TrimPrefix(text, valuePrefix))
			case text == okLine:
			case text == fatalLine:
				reply.Fatal = true
			case text == doneLine:
				return reply, nil
			default:
				reply.Output = append(reply.Output, text)
			}
		}
	}
}

// SendFile streams a G-code file one line at a time. Blank lines and
// ';' comments are skipped. It stops at the first failing line.
func (m *MCU) SendFile(r io.Reader, each func(n int, reply *Reply)) error {
	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		line := scanner.Text()
		if i := strings.IndexByte(line, ';'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		reply, err := m.Send(line)
		if err != nil {
			return errors.Wrapf(err, "line %d", n)
		}
		if each != nil {
			each(n, reply)
		}
		if err := reply.Err(); err != nil {
			return errors.Wrapf(err, "line %d", n)
		}
	}
	return scanner.Err()
}

// Drain hands unsolicited lines to Notify until quiet for d
func (m *MCU) Drain(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, lines, _ := m.conn()
	if lines == nil {
		return
	}
	for {
		select {
		case text, ok := <-lines:
			if !ok {
				return
			}
			m.notify(text)
		case <-time.After(d):
			return
		}
	}
}

func (m *MCU) notify(line string) {
	if m.Notify != nil {
		m.Notify(line)
		return
	}
	m.log.Info(line)
}
