package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"
)

var (
	// ErrNoDevice means the platform reports no capture devices.
	ErrNoDevice = errors.New("no capture device found")
	// ErrDeviceNotFound means the configured device name matched nothing.
	ErrDeviceNotFound = errors.New("configured capture device not found")
)

// Stream is an acquired microphone. It must be released exactly once per
// acquisition; extra Release calls are no-ops.
type Stream interface {
	DeviceName() string
	Release() error
}

// Microphone acquires capture streams.
type Microphone interface {
	Acquire(ctx context.Context) (Stream, error)
}

// MalgoMicrophone acquires the platform microphone through miniaudio.
type MalgoMicrophone struct {
	device      string
	log         zerolog.Logger
	initContext func() (*malgo.AllocatedContext, error)
}

// NewMicrophone returns a microphone that selects the capture device whose
// name contains device (case-insensitive), or the system default when device
// is empty.
func NewMicrophone(device string, log zerolog.Logger) *MalgoMicrophone {
	return &MalgoMicrophone{device: device, log: log, initContext: initMalgoContext}
}

func initMalgoContext() (*malgo.AllocatedContext, error) {
	return malgo.InitContext(nil, malgo.ContextConfig{}, nil)
}

// Acquire initializes an audio context and selects a capture device.
// Enumeration failures and missing devices are reported as *PermissionError.
// When the audio library itself cannot start, Acquire still returns a stream
// without a context: the stream backend then fails setup and the recorder
// backend, which opens the device on its own, gets its turn.
func (m *MalgoMicrophone) Acquire(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mctx, err := m.initContext()
	if err != nil {
		m.log.Warn().Err(err).Msg("Audio context unavailable")
		name := m.device
		if name == "" {
			name = "default"
		}
		return &MalgoStream{name: name, initErr: fmt.Errorf("initializing audio context: %w", err)}, nil
	}

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		freeContext(mctx)
		return nil, &PermissionError{Device: m.device, Err: fmt.Errorf("enumerating capture devices: %w", err)}
	}

	info, err := selectDevice(infos, m.device)
	if err != nil {
		freeContext(mctx)
		return nil, &PermissionError{Device: m.device, Err: err}
	}

	s := &MalgoStream{ctx: mctx, name: info.Name(), id: info.ID}
	m.log.Debug().Str("device", s.name).Int("available", len(infos)).Msg("Microphone acquired")
	return s, nil
}

// selectDevice picks the first device whose name contains want, or the
// default device, or the first device listed.
func selectDevice(infos []malgo.DeviceInfo, want string) (malgo.DeviceInfo, error) {
	if len(infos) == 0 {
		return malgo.DeviceInfo{}, ErrNoDevice
	}
	if want != "" {
		needle := strings.ToLower(want)
		for _, info := range infos {
			if strings.Contains(strings.ToLower(info.Name()), needle) {
				return info, nil
			}
		}
		return malgo.DeviceInfo{}, fmt.Errorf("%w: %q", ErrDeviceNotFound, want)
	}
	for _, info := range infos {
		if info.IsDefault != 0 {
			return info, nil
		}
	}
	return infos[0], nil
}

func freeContext(ctx *malgo.AllocatedContext) error {
	err := ctx.Uninit()
	ctx.Free()
	if err != nil {
		return fmt.Errorf("uninitializing audio context: %w", err)
	}
	return nil
}

// MalgoStream is a miniaudio context bound to one selected capture device.
// A stream whose context failed to initialize has a nil ctx and carries the
// failure in initErr.
type MalgoStream struct {
	ctx     *malgo.AllocatedContext
	name    string
	id      malgo.DeviceID
	initErr error

	once sync.Once
	err  error
}

// DeviceName returns the selected device's display name.
func (s *MalgoStream) DeviceName() string { return s.name }

// Release frees the audio context.
func (s *MalgoStream) Release() error {
	s.once.Do(func() {
		if s.ctx != nil {
			s.err = freeContext(s.ctx)
		}
	})
	return s.err
}

// ListDevices returns the names of all capture devices.
func ListDevices() ([]string, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("capture: initializing audio context: %w", err)
	}
	defer freeContext(mctx)

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("capture: enumerating capture devices: %w", err)
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, nil
}
