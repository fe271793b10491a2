package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"

	"github.com/chaz8081/murmurcap/internal/audio"
	"github.com/chaz8081/murmurcap/internal/audio/normalize"
	"github.com/chaz8081/murmurcap/internal/metrics"
)

// DataFunc receives interleaved little-endian float32 frames from the audio
// thread. The input slice is reused by the device after the call returns.
type DataFunc func(input []byte, frameCount uint32)

// DeviceConfig is the capture format requested from a device.
type DeviceConfig struct {
	SampleRate   uint32
	Channels     uint32
	PeriodFrames uint32
}

// CaptureDevice is a running capture device.
type CaptureDevice interface {
	Start() error
	// Stop halts the device. No DataFunc call is in flight once it returns.
	Stop() error
	Uninit()
	// SampleRate is the rate the device actually negotiated.
	SampleRate() uint32
	// Channels is the channel count the device actually delivers.
	Channels() uint32
}

// DeviceOpener opens capture devices on an acquired stream.
type DeviceOpener interface {
	Open(stream Stream, cfg DeviceConfig, onData DataFunc) (CaptureDevice, error)
}

// MalgoOpener opens miniaudio capture devices. It requires a *MalgoStream.
type MalgoOpener struct{}

// Open initializes an F32 capture device on the stream's selected device.
func (MalgoOpener) Open(stream Stream, cfg DeviceConfig, onData DataFunc) (CaptureDevice, error) {
	ms, ok := stream.(*MalgoStream)
	if !ok {
		return nil, fmt.Errorf("stream %T is not a miniaudio stream", stream)
	}
	if ms.ctx == nil {
		return nil, fmt.Errorf("no audio context: %w", ms.initErr)
	}

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = cfg.Channels
	deviceCfg.Capture.DeviceID = ms.id.Pointer()
	deviceCfg.SampleRate = cfg.SampleRate
	deviceCfg.PeriodSizeInFrames = cfg.PeriodFrames

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			onData(input, frameCount)
		},
	}

	device, err := malgo.InitDevice(ms.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("initializing capture device: %w", err)
	}
	return &malgoDevice{device: device, channels: cfg.Channels}, nil
}

type malgoDevice struct {
	device   *malgo.Device
	channels uint32
}

func (d *malgoDevice) Start() error       { return d.device.Start() }
func (d *malgoDevice) Stop() error        { return d.device.Stop() }
func (d *malgoDevice) Uninit()            { d.device.Uninit() }
func (d *malgoDevice) SampleRate() uint32 { return d.device.SampleRate() }

func (d *malgoDevice) Channels() uint32 {
	if ch := d.device.CaptureChannels(); ch > 0 {
		return ch
	}
	return d.channels
}

// StreamConfig configures a StreamBackend.
type StreamConfig struct {
	// SampleRate is the rate requested from the device; 0 uses the device default.
	SampleRate int
	// Channels requested from the device. Only channel 0 is kept.
	Channels int
	// BlockFrames is the requested callback period.
	BlockFrames int
	// QueueSize bounds the chunk channel between the audio thread and collector.
	QueueSize int
	// TargetRate is the canonical output rate.
	TargetRate int
}

// StreamBackend records raw PCM blocks delivered by a device callback.
type StreamBackend struct {
	opener  DeviceOpener
	cfg     StreamConfig
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	device    CaptureDevice
	chunks    chan audio.Chunk
	collected []audio.Chunk
	done      chan struct{}
	channels  uint32

	accepting atomic.Bool
	seq       atomic.Uint64
}

// NewStreamBackend returns a stream backend. m may be nil.
func NewStreamBackend(opener DeviceOpener, cfg StreamConfig, log zerolog.Logger, m *metrics.Metrics) *StreamBackend {
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.TargetRate <= 0 {
		cfg.TargetRate = audio.DefaultSampleRate
	}
	return &StreamBackend{opener: opener, cfg: cfg, log: log, metrics: m}
}

// Strategy returns StrategyStream.
func (b *StreamBackend) Strategy() Strategy { return StrategyStream }

// Start opens and starts the capture device.
func (b *StreamBackend) Start(ctx context.Context, stream Stream) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.device != nil {
		return &SetupError{Strategy: StrategyStream, Err: errors.New("already recording")}
	}
	if err := ctx.Err(); err != nil {
		return &SetupError{Strategy: StrategyStream, Err: err}
	}

	cfg := DeviceConfig{
		SampleRate:   uint32(b.cfg.SampleRate),
		Channels:     uint32(b.cfg.Channels),
		PeriodFrames: uint32(b.cfg.BlockFrames),
	}
	device, err := b.opener.Open(stream, cfg, b.onData)
	if err != nil {
		return &SetupError{Strategy: StrategyStream, Err: err}
	}

	b.channels = device.Channels()
	if b.channels == 0 {
		b.channels = cfg.Channels
	}
	b.chunks = make(chan audio.Chunk, b.cfg.QueueSize)
	b.collected = nil
	b.done = make(chan struct{})
	b.seq.Store(0)
	go b.collect(b.chunks, b.done)

	b.accepting.Store(true)
	if err := device.Start(); err != nil {
		b.accepting.Store(false)
		device.Uninit()
		close(b.chunks)
		<-b.done
		b.chunks = nil
		return &SetupError{Strategy: StrategyStream, Err: fmt.Errorf("starting capture device: %w", err)}
	}

	b.device = device
	b.log.Info().
		Str("device", stream.DeviceName()).
		Uint32("sample_rate", device.SampleRate()).
		Uint32("channels", b.channels).
		Msg("Stream capture started")
	return nil
}

// onData runs on the audio thread. It copies channel 0 out of the reused
// device buffer and hands the copy to the collector. A full queue blocks the
// audio thread rather than dropping the block.
func (b *StreamBackend) onData(input []byte, frameCount uint32) {
	if !b.accepting.Load() {
		return
	}
	block := channelZero(input, frameCount, b.channels)
	b.chunks <- audio.Chunk{Seq: b.seq.Add(1) - 1, Samples: block}
}

func (b *StreamBackend) collect(in <-chan audio.Chunk, done chan<- struct{}) {
	defer close(done)
	for c := range in {
		b.collected = append(b.collected, c)
	}
}

// Stop halts the device, drains the queue and encodes what was captured at
// the device's negotiated rate.
func (b *StreamBackend) Stop(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.device == nil {
		return nil, ErrNotRecording
	}

	start := time.Now()
	rate, stopErr := b.teardown()
	if stopErr != nil {
		return nil, fmt.Errorf("capture: stop device: %w", stopErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	samples := audio.Concat(b.collected)
	chunks := len(b.collected)
	b.collected = nil
	if rate <= 0 {
		rate = b.cfg.SampleRate
	}

	b.metrics.ChunksCaptured(chunks)
	b.log.Debug().Int("chunks", chunks).Int("samples", len(samples)).Int("source_rate", rate).Msg("Stream capture drained")

	wav, err := normalize.EncodeBuffer(audio.Buffer{Samples: samples, Channels: 1, SampleRate: rate}, b.cfg.TargetRate)
	if err != nil {
		return nil, err
	}
	b.metrics.Finalized(string(StrategyStream), time.Since(start), (len(wav)-audio.HeaderSize)/2)
	return wav, nil
}

// Abort halts the device and discards captured audio.
func (b *StreamBackend) Abort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.device == nil {
		return
	}
	if _, err := b.teardown(); err != nil {
		b.log.Warn().Err(err).Msg("Stopping capture device during abort")
	}
	b.collected = nil
}

// teardown clears the accepting flag, waits for the device to acknowledge
// the stop and drains the collector. b.mu must be held.
func (b *StreamBackend) teardown() (int, error) {
	b.accepting.Store(false)
	err := b.device.Stop()
	rate := int(b.device.SampleRate())
	b.device.Uninit()
	b.device = nil

	close(b.chunks)
	<-b.done
	b.chunks = nil
	return rate, err
}

// channelZero copies the first channel of interleaved float32 frames into a
// new slice.
func channelZero(data []byte, frameCount, channels uint32) []float32 {
	if channels == 0 {
		channels = 1
	}
	stride := int(channels) * 4
	frames := int(frameCount)
	if max := len(data) / stride; frames > max {
		frames = max
	}
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		off := i * stride
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
	}
	return out
}
