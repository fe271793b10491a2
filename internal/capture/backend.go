// Package capture acquires microphone input and records it through one of two
// backends: a low-latency callback stream that yields raw PCM blocks, or an
// external recorder process that yields a compressed container. Both
// finalize into a canonical WAV through the normalize package.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Strategy names a capture backend.
type Strategy string

const (
	// StrategyAuto tries the stream backend and falls back to the recorder.
	StrategyAuto Strategy = "auto"
	// StrategyStream records raw PCM blocks from a device callback.
	StrategyStream Strategy = "stream"
	// StrategyRecorder records a container through an external program.
	StrategyRecorder Strategy = "recorder"
)

// ParseStrategy maps a config value to a Strategy. Empty means auto.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyAuto:
		return StrategyAuto, nil
	case StrategyStream:
		return StrategyStream, nil
	case StrategyRecorder:
		return StrategyRecorder, nil
	}
	return "", fmt.Errorf("capture: unknown strategy %q (valid: auto, stream, recorder)", s)
}

// Backend records one take from an acquired Stream.
type Backend interface {
	// Strategy reports which backend this is.
	Strategy() Strategy
	// Start begins recording. Failures are returned as *SetupError.
	Start(ctx context.Context, stream Stream) error
	// Stop ends recording and returns the canonical WAV bytes.
	Stop(ctx context.Context) ([]byte, error)
	// Abort tears the backend down without producing output.
	Abort()
}

// ErrNotRecording is returned by Stop on a backend that was never started.
var ErrNotRecording = errors.New("capture: backend not recording")

// PermissionError reports that the microphone could not be acquired, either
// because access was denied or no capture device exists.
type PermissionError struct {
	Device string
	Err    error
}

func (e *PermissionError) Error() string {
	if e.Device != "" {
		return fmt.Sprintf("capture: microphone %q unavailable: %v", e.Device, e.Err)
	}
	return fmt.Sprintf("capture: microphone unavailable: %v", e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// SetupError reports that a backend could not begin recording.
type SetupError struct {
	Strategy Strategy
	Err      error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("capture: %s backend setup: %v", e.Strategy, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// UnavailableError reports that every attempted backend failed to start.
type UnavailableError struct {
	Attempts []*SetupError
}

func (e *UnavailableError) Error() string {
	if len(e.Attempts) == 0 {
		return "capture: no capture backend available"
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %v", a.Strategy, a.Err)
	}
	return "capture: no capture backend available (" + strings.Join(parts, "; ") + ")"
}

// Unwrap exposes each attempt to errors.Is and errors.As.
func (e *UnavailableError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		errs[i] = a
	}
	return errs
}
