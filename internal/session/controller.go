// Package session runs one microphone recording at a time: it acquires the
// microphone, picks a capture backend with fallback, keeps the elapsed-time
// display moving and finalizes the take into a Recording.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/chaz8081/murmurcap/internal/capture"
	"github.com/chaz8081/murmurcap/internal/metrics"
)

// State is the controller's position in the recording lifecycle.
type State int32

const (
	// StateIdle holds no device and no backend.
	StateIdle State = iota
	// StateRecording has an acquired stream and a running backend.
	StateRecording
	// StateFinalizing is Stop waiting on the backend's output.
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

var (
	// ErrSessionActive is returned by Start while a session is running.
	ErrSessionActive = errors.New("session: a recording session is already active")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("session: controller closed")

	errBackendMissing = errors.New("backend not configured")
)

// Decision records one backend attempt made by Start.
type Decision struct {
	Strategy capture.Strategy
	Err      error
}

// Config controls strategy selection and timing.
type Config struct {
	Strategy capture.Strategy
	// MaxDuration closes Done after this long; 0 disables the limit.
	MaxDuration time.Duration
	// TickInterval is the elapsed display granularity; default 1s.
	TickInterval time.Duration
	// OnTick is called from the clock goroutine with the elapsed time. It
	// must not call Stop or Close.
	OnTick func(elapsed time.Duration)
}

// Options wires a Controller.
type Options struct {
	Microphone capture.Microphone
	Stream     capture.Backend
	Recorder   capture.Backend
	Config     Config
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
}

// Controller owns the device stream and the active backend of the current
// session. Its methods are safe for concurrent use; calls are serialized.
type Controller struct {
	mic      capture.Microphone
	backends map[capture.Strategy]capture.Backend
	cfg      Config
	log      zerolog.Logger
	metrics  *metrics.Metrics

	mu        sync.Mutex
	state     atomic.Int32
	elapsed   atomic.Int64
	stream    capture.Stream
	active    capture.Backend
	decisions []Decision
	done      chan struct{}
	clockStop chan struct{}
	clockDone chan struct{}
	closed    bool
}

// New returns an idle controller.
func New(opts Options) *Controller {
	cfg := opts.Config
	if cfg.Strategy == "" {
		cfg.Strategy = capture.StrategyAuto
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	backends := make(map[capture.Strategy]capture.Backend, 2)
	if opts.Stream != nil {
		backends[capture.StrategyStream] = opts.Stream
	}
	if opts.Recorder != nil {
		backends[capture.StrategyRecorder] = opts.Recorder
	}
	return &Controller{
		mic:      opts.Microphone,
		backends: backends,
		cfg:      cfg,
		log:      opts.Logger,
		metrics:  opts.Metrics,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Elapsed returns the recording time as of the last clock tick.
func (c *Controller) Elapsed() time.Duration {
	return time.Duration(c.elapsed.Load())
}

// Done is closed when the current session reaches MaxDuration. The caller
// is expected to call Stop. It is nil, and so never fires, while idle.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Decisions returns the backend attempts made by the most recent Start.
func (c *Controller) Decisions() []Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Decision, len(c.decisions))
	copy(out, c.decisions)
	return out
}

func (c *Controller) order() []capture.Strategy {
	switch c.cfg.Strategy {
	case capture.StrategyStream:
		return []capture.Strategy{capture.StrategyStream}
	case capture.StrategyRecorder:
		return []capture.Strategy{capture.StrategyRecorder}
	}
	return []capture.Strategy{capture.StrategyStream, capture.StrategyRecorder}
}

// Start acquires the microphone and begins recording with the first backend
// that starts. A microphone failure is returned as is with no fallback.
// When every backend fails the stream is released and a
// *capture.UnavailableError is returned.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.State() != StateIdle {
		return ErrSessionActive
	}

	stream, err := c.mic.Acquire(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("Microphone acquisition failed")
		return err
	}

	c.decisions = nil
	var attempts []*capture.SetupError
	var active capture.Backend
	for _, strategy := range c.order() {
		b, ok := c.backends[strategy]
		var err error
		if !ok {
			err = errBackendMissing
		} else {
			err = b.Start(ctx, stream)
		}
		c.decisions = append(c.decisions, Decision{Strategy: strategy, Err: err})
		if err == nil {
			active = b
			c.log.Info().Str("strategy", string(strategy)).Msg("Capture backend selected")
			break
		}

		var se *capture.SetupError
		if !errors.As(err, &se) {
			se = &capture.SetupError{Strategy: strategy, Err: err}
		}
		attempts = append(attempts, se)
		c.metrics.SetupFailed(string(strategy))
		c.log.Warn().Err(err).Str("strategy", string(strategy)).Msg("Capture backend unavailable")
	}

	if active == nil {
		if rerr := stream.Release(); rerr != nil {
			c.log.Warn().Err(rerr).Msg("Releasing microphone")
		}
		return &capture.UnavailableError{Attempts: attempts}
	}
	if len(attempts) > 0 {
		c.metrics.Fallback()
	}
	c.metrics.SessionStarted(string(active.Strategy()))

	c.stream = stream
	c.active = active
	c.elapsed.Store(0)
	c.startClock()
	c.state.Store(int32(StateRecording))
	return nil
}

func (c *Controller) startClock() {
	c.done = make(chan struct{})
	c.clockStop = make(chan struct{})
	c.clockDone = make(chan struct{})
	go runClock(time.Now(), c.cfg, &c.elapsed, c.done, c.clockStop, c.clockDone)
}

func runClock(start time.Time, cfg Config, elapsed *atomic.Int64, limitReached chan<- struct{}, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()

	var limit <-chan time.Time
	if cfg.MaxDuration > 0 {
		t := time.NewTimer(cfg.MaxDuration)
		defer t.Stop()
		limit = t.C
	}

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			d := now.Sub(start).Truncate(cfg.TickInterval)
			elapsed.Store(int64(d))
			if cfg.OnTick != nil {
				cfg.OnTick(d)
			}
		case <-limit:
			close(limitReached)
			limit = nil
		}
	}
}

// stopClock halts the ticker and limit timer. c.mu must be held.
func (c *Controller) stopClock() {
	if c.clockStop == nil {
		return
	}
	close(c.clockStop)
	<-c.clockDone
	c.clockStop = nil
	c.clockDone = nil
}

// Stop finalizes the active session. It is a no-op returning (nil, nil)
// unless the controller is recording. The stream is released whether or not
// finalization succeeds.
func (c *Controller) Stop(ctx context.Context) (*Recording, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != StateRecording {
		return nil, nil
	}

	c.stopClock()
	c.done = nil
	c.state.Store(int32(StateFinalizing))

	backend := c.active
	wav, err := backend.Stop(ctx)
	c.active = nil
	c.releaseStream()
	c.state.Store(int32(StateIdle))

	if err != nil {
		c.log.Error().Err(err).Str("strategy", string(backend.Strategy())).Msg("Finalizing recording failed")
		return nil, err
	}

	rec, err := NewRecording(wav, backend.Strategy())
	if err != nil {
		return nil, err
	}
	c.log.Info().
		Str("id", rec.ID.String()).
		Str("strategy", string(rec.Strategy)).
		Int("samples", rec.Samples).
		Dur("duration", rec.Duration).
		Msg("Recording finalized")
	return rec, nil
}

func (c *Controller) releaseStream() {
	if c.stream == nil {
		return
	}
	if err := c.stream.Release(); err != nil {
		c.log.Warn().Err(err).Msg("Releasing microphone")
	}
	c.stream = nil
}

// Close aborts any active session and releases the microphone. Start fails
// with ErrClosed afterwards.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	c.stopClock()
	c.done = nil
	if c.active != nil {
		c.active.Abort()
		c.active = nil
	}
	c.releaseStream()
	c.state.Store(int32(StateIdle))
	return nil
}

// FormatElapsed renders d as mm:ss.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
