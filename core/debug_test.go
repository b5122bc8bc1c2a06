package core

import (
	"strings"
	"testing"
)

func TestWriterLoggerLevels(t *testing.T) {
	var lines []string
	l := &WriterLogger{Write: func(s string) { lines = append(lines, s) }}

	l.Debugf("hidden %d", 1)
	l.Infof("axis %s ready", "x")
	l.Errorf("plain")

	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d: %v", len(lines), lines)
	}
	if lines[0] != "INFO axis x ready" {
		t.Errorf("Unexpected info line %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "ERROR ") {
		t.Errorf("Unexpected error line %q", lines[1])
	}

	l.Debug = true
	l.Debugf("shown %d", 2)
	if len(lines) != 3 || lines[2] != "DEBUG shown 2" {
		t.Errorf("Expected debug line, got %v", lines)
	}
}
