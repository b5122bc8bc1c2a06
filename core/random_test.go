package core

import (
	"errors"
	"testing"
)

func TestRandomRetriesTransientFailures(t *testing.T) {
	calls := 0
	src := RandomFunc(func() (uint32, error) {
		calls++
		if calls < 5 {
			return 0, errors.New("busy")
		}
		return 42, nil
	})

	v, err := Random(src)
	if err != nil {
		t.Fatalf("Random failed: %v", err)
	}
	if v != 42 {
		t.Errorf("Expected 42, got %d", v)
	}
	if calls != 5 {
		t.Errorf("Expected 5 calls, got %d", calls)
	}
}

func TestRandomGivesUp(t *testing.T) {
	calls := 0
	src := RandomFunc(func() (uint32, error) {
		calls++
		return 0, errors.New("busy")
	})

	if _, err := Random(src); !errors.Is(err, ErrRandomUnavailable) {
		t.Errorf("Expected ErrRandomUnavailable, got %v", err)
	}
	if calls != randomRetries {
		t.Errorf("Expected %d calls, got %d", randomRetries, calls)
	}
}
