package gcode

import (
	"fmt"
	"math"

	"gopnp/standalone"
)

// MaxLineLength bounds the line buffer
const MaxLineLength = 256

// unitScale converts millimeters to nanometers and degrees to
// micro-degrees
const unitScale = 1e6

// ParseError reports a malformed line. Nothing from the line is executed.
type ParseError struct {
	Pos    int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %d: %s", e.Pos, e.Reason)
}

// Token is one letter and its value
type Token struct {
	Letter byte
	Value  float64
}

// Line is a parsed input line. Tokens holds every token scanned, up to
// the error for a malformed line.
type Line struct {
	Text    string
	Tokens  []Token
	Command standalone.Command
}

// Parser turns input lines into commands
type Parser struct {
	lineBuffer []byte
	overflow   bool
}

// NewParser creates a new parser
func NewParser() *Parser {
	return &Parser{
		lineBuffer: make([]byte, 0, MaxLineLength),
	}
}

// Feed adds one input byte. When b ends a line the parsed line is
// returned with done set; the buffer then starts afresh.
func (p *Parser) Feed(b byte) (line *Line, done bool, err error) {
	if b != '\n' {
		if len(p.lineBuffer) >= MaxLineLength {
			p.overflow = true
			return nil, false, nil
		}
		p.lineBuffer = append(p.lineBuffer, b)
		return nil, false, nil
	}

	text := string(p.lineBuffer)
	overflow := p.overflow
	p.lineBuffer = p.lineBuffer[:0]
	p.overflow = false

	if overflow {
		return &Line{Text: trimCR(text)}, true, &ParseError{Pos: MaxLineLength, Reason: "line too long"}
	}
	line, err = p.ParseLine(text)
	return line, true, err
}

// ParseLine parses one line without its terminator. A trailing CR is
// ignored.
func (p *Parser) ParseLine(text string) (*Line, error) {
	text = trimCR(text)
	line := &Line{Text: text}
	cmd := &line.Command

	i := 0
	for i < len(text) {
		letter := text[i]

		// Skip spaces
		if letter == ' ' {
			i++
			continue
		}

		if letter < 'A' || letter > 'Z' {
			return line, &ParseError{Pos: i, Reason: fmt.Sprintf("unexpected %q", letter)}
		}
		i++

		// The value must start with a digit or a sign
		if i >= len(text) || !startsNumber(text[i]) {
			return line, &ParseError{Pos: i, Reason: fmt.Sprintf("%c without a value", letter)}
		}
		value, next := parseFloat(text, i)
		if next <= i {
			return line, &ParseError{Pos: i, Reason: fmt.Sprintf("%c: bad number", letter)}
		}
		i = next

		line.Tokens = append(line.Tokens, Token{Letter: letter, Value: value})
		apply(cmd, letter, value)
	}

	return line, nil
}

// apply records one token in the command. Unknown letters are ignored.
func apply(cmd *standalone.Command, letter byte, value float64) {
	switch letter {
	case 'G':
		switch value {
		case 0:
			cmd.Kind = standalone.CmdMove
		case 28:
			cmd.Kind = standalone.CmdHome
		}
	case 'M':
		switch value {
		case 800:
			cmd.Kind = standalone.CmdActuate
		case 105:
			cmd.Kind = standalone.CmdSensorRead
		case 114:
			cmd.Kind = standalone.CmdPosition
		}
	case 'X':
		cmd.X, cmd.XSet = scale(value), true
	case 'Y':
		cmd.Y, cmd.YSet = scale(value), true
	case 'Z':
		cmd.Z, cmd.ZSet = scale(value), true
	case 'I':
		cmd.H1, cmd.H1Set = scale(value), true
	case 'J':
		cmd.H2, cmd.H2Set = scale(value), true
	case 'P':
		actuate(cmd, standalone.TargetPump, value)
	case 'V':
		actuate(cmd, standalone.TargetVacuum1, value)
	case 'W':
		actuate(cmd, standalone.TargetVacuum2, value)
	case 'D':
		actuate(cmd, standalone.TargetNeedle, value)
	case 'O':
		actuate(cmd, standalone.TargetPeel, value)
	case 'N':
		cmd.SensorTarget = int(value)
	}
}

func actuate(cmd *standalone.Command, target standalone.ActuateTarget, value float64) {
	cmd.Actuate |= target
	cmd.ActuateValue = value != 0
}

// scale converts mm or degrees to nm or micro-degrees, saturating at the
// int64 range
func scale(value float64) int64 {
	v := math.Round(value * unitScale)
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt64:
		return math.MaxInt64
	case v <= math.MinInt64:
		return math.MinInt64
	}
	return int64(v)
}

func trimCR(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\r' {
		return s[:len(s)-1]
	}
	return s
}

func startsNumber(c byte) bool {
	return (c >= '0' && c <= '9') || c == '+' || c == '-'
}

// parseFloat parses a floating-point number from the string starting at
// pos. It returns a position at or before pos when no number is found.
func parseFloat(s string, pos int) (float64, int) {
	if pos >= len(s) {
		return 0, pos
	}

	negative := false
	if s[pos] == '-' {
		negative = true
		pos++
	} else if s[pos] == '+' {
		pos++
	}

	start := pos
	intPart := 0.0
	fracPart := 0.0
	fracDigits := 0

	// Parse integer part
	for pos < len(s) && s[pos] >= '0' && s[pos] <= '9' {
		intPart = intPart*10 + float64(s[pos]-'0')
		pos++
	}

	// Parse fractional part
	if pos < len(s) && s[pos] == '.' {
		pos++
		fracStart := pos
		for pos < len(s) && s[pos] >= '0' && s[pos] <= '9' {
			fracPart = fracPart*10.0 + float64(s[pos]-'0')
			pos++
		}
		fracDigits = pos - fracStart
	}

	if pos == start || (pos == start+1 && s[start] == '.') {
		return 0, start - 1 // No valid number found
	}

	// Combine integer and fractional parts
	value := intPart
	if fracDigits > 0 {
		value += fracPart / math.Pow(10, float64(fracDigits))
	}

	// Exponent, only consumed when digits follow
	if pos < len(s) && (s[pos] == 'e' || s[pos] == 'E') {
		e := pos + 1
		expNegative := false
		if e < len(s) && (s[e] == '-' || s[e] == '+') {
			expNegative = s[e] == '-'
			e++
		}
		exp := 0
		expStart := e
		for e < len(s) && s[e] >= '0' && s[e] <= '9' {
			if exp < 400 {
				exp = exp*10 + int(s[e]-'0')
			}
			e++
		}
		if e > expStart {
			if expNegative {
				exp = -exp
			}
			value *= math.Pow(10, float64(exp))
			pos = e
		}
	}

	if negative {
		value = -value
	}

	return value, pos
}
