package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chaz8081/murmurcap/internal/audio"
	"github.com/chaz8081/murmurcap/internal/audio/decode"
	"github.com/chaz8081/murmurcap/internal/audio/normalize"
	"github.com/chaz8081/murmurcap/internal/metrics"
)

// Process is a running recorder whose stdout carries the container stream.
type Process interface {
	Stdout() io.Reader
	// Interrupt asks the recorder to finish the container and exit.
	Interrupt() error
	Kill() error
	Wait() error
}

// Launcher starts recorder processes.
type Launcher interface {
	Launch(ctx context.Context, program string, args []string) (Process, error)
}

// ExecLauncher runs recorders as child processes.
type ExecLauncher struct{}

// Launch starts program with args. The process outlives ctx; Stop is the
// only way to end it.
func (ExecLauncher) Launch(_ context.Context, program string, args []string) (Process, error) {
	cmd := exec.Command(program, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening %s stdout: %w", program, err)
	}
	p := &execProcess{cmd: cmd, stdout: stdout}
	cmd.Stderr = &p.stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", program, err)
	}
	return p, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer
}

func (p *execProcess) Stdout() io.Reader { return p.stdout }

func (p *execProcess) Interrupt() error {
	if runtime.GOOS == "windows" {
		return p.cmd.Process.Kill()
	}
	return p.cmd.Process.Signal(os.Interrupt)
}

func (p *execProcess) Kill() error { return p.cmd.Process.Kill() }

func (p *execProcess) Wait() error {
	err := p.cmd.Wait()
	if err != nil && p.stderr.Len() > 0 {
		return fmt.Errorf("%w: %s", err, bytes.TrimSpace(p.stderr.Bytes()))
	}
	return err
}

// Recipe is a negotiated recorder invocation.
type Recipe struct {
	Program   string
	Container decode.Container
	Args      []string
}

// RecipeParams describes the recording a recipe must produce.
type RecipeParams struct {
	SampleRate int
	Channels   int
	Device     string
}

type recorderTool struct {
	program    string
	containers []decode.Container
	args       func(decode.Container, RecipeParams) ([]string, bool)
}

var recorderTools = []recorderTool{
	{
		program:    "ffmpeg",
		containers: []decode.Container{decode.ContainerFLAC, decode.ContainerOgg, decode.ContainerWAV},
		args:       ffmpegArgs,
	},
	{
		program:    "arecord",
		containers: []decode.Container{decode.ContainerWAV},
		args:       arecordArgs,
	},
	{
		program:    "pw-record",
		containers: []decode.Container{decode.ContainerWAV},
		args:       pwRecordArgs,
	},
}

// DefaultContainers is the container preference order.
var DefaultContainers = []decode.Container{decode.ContainerFLAC, decode.ContainerOgg, decode.ContainerWAV}

// ErrNoRecorder means no supported recorder program was found.
var ErrNoRecorder = errors.New("no supported recorder program found")

// Negotiate picks the first available recorder and the first container in
// prefer that it can write. When program is non-empty only that tool is
// considered.
func Negotiate(lookPath func(string) (string, error), program string, prefer []decode.Container, p RecipeParams) (Recipe, error) {
	if len(prefer) == 0 {
		prefer = DefaultContainers
	}
	for _, tool := range recorderTools {
		if program != "" && tool.program != program {
			continue
		}
		path, err := lookPath(tool.program)
		if err != nil {
			continue
		}
		for _, c := range prefer {
			if !supports(tool.containers, c) {
				continue
			}
			args, ok := tool.args(c, p)
			if !ok {
				continue
			}
			return Recipe{Program: path, Container: c, Args: args}, nil
		}
	}
	if program != "" {
		return Recipe{}, fmt.Errorf("%w: %s", ErrNoRecorder, program)
	}
	return Recipe{}, ErrNoRecorder
}

func supports(list []decode.Container, c decode.Container) bool {
	for _, v := range list {
		if v == c {
			return true
		}
	}
	return false
}

func ffmpegArgs(c decode.Container, p RecipeParams) ([]string, bool) {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	switch runtime.GOOS {
	case "darwin":
		dev := p.Device
		if dev == "" {
			dev = "0"
		}
		args = append(args, "-f", "avfoundation", "-i", ":"+dev)
	case "windows":
		if p.Device == "" {
			return nil, false
		}
		args = append(args, "-f", "dshow", "-i", "audio="+p.Device)
	default:
		dev := p.Device
		if dev == "" {
			dev = "default"
		}
		args = append(args, "-f", "pulse", "-i", dev)
	}
	args = append(args, "-ac", strconv.Itoa(p.Channels), "-ar", strconv.Itoa(p.SampleRate))
	switch c {
	case decode.ContainerFLAC:
		args = append(args, "-c:a", "flac", "-f", "flac")
	case decode.ContainerOgg:
		args = append(args, "-c:a", "libvorbis", "-f", "ogg")
	case decode.ContainerWAV:
		args = append(args, "-c:a", "pcm_s16le", "-f", "wav")
	default:
		return nil, false
	}
	return append(args, "pipe:1"), true
}

func arecordArgs(_ decode.Container, p RecipeParams) ([]string, bool) {
	args := []string{"-q", "-t", "wav", "-f", "S16_LE",
		"-c", strconv.Itoa(p.Channels), "-r", strconv.Itoa(p.SampleRate)}
	if p.Device != "" {
		args = append(args, "-D", p.Device)
	}
	return append(args, "-"), true
}

func pwRecordArgs(_ decode.Container, p RecipeParams) ([]string, bool) {
	args := []string{"--rate", strconv.Itoa(p.SampleRate),
		"--channels", strconv.Itoa(p.Channels), "--format", "s16"}
	if p.Device != "" {
		args = append(args, "--target", p.Device)
	}
	return append(args, "-"), true
}

// RecorderConfig configures a RecorderBackend.
type RecorderConfig struct {
	// Program forces one recorder tool; empty negotiates.
	Program    string
	Containers []decode.Container
	SampleRate int
	Channels   int
	Device     string
	// FlushTimeout bounds the wait for the final container flush.
	FlushTimeout time.Duration
	// StartupGrace is how long Start watches for an immediate exit.
	StartupGrace time.Duration
	TargetRate   int
}

const readBlockSize = 32 * 1024

// RecorderBackend records a compressed container through an external
// program and decodes it after the fact.
type RecorderBackend struct {
	launcher Launcher
	lookPath func(string) (string, error)
	cfg      RecorderConfig
	log      zerolog.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	proc     Process
	recipe   Recipe
	readDone chan struct{}

	chunkMu sync.Mutex
	chunks  [][]byte
	readErr error
}

// NewRecorderBackend returns a recorder backend. m may be nil.
func NewRecorderBackend(launcher Launcher, cfg RecorderConfig, log zerolog.Logger, m *metrics.Metrics) *RecorderBackend {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 3 * time.Second
	}
	if cfg.TargetRate <= 0 {
		cfg.TargetRate = audio.DefaultSampleRate
	}
	return &RecorderBackend{
		launcher: launcher,
		lookPath: exec.LookPath,
		cfg:      cfg,
		log:      log,
		metrics:  m,
	}
}

// Strategy returns StrategyRecorder.
func (b *RecorderBackend) Strategy() Strategy { return StrategyRecorder }

// Start negotiates a recorder and launches it. The recorder opens the
// capture device itself; stream only has to stay acquired meanwhile.
func (b *RecorderBackend) Start(ctx context.Context, stream Stream) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.proc != nil {
		return &SetupError{Strategy: StrategyRecorder, Err: errors.New("already recording")}
	}

	recipe, err := Negotiate(b.lookPath, b.cfg.Program, b.cfg.Containers, RecipeParams{
		SampleRate: b.cfg.SampleRate,
		Channels:   b.cfg.Channels,
		Device:     b.cfg.Device,
	})
	if err != nil {
		return &SetupError{Strategy: StrategyRecorder, Err: err}
	}

	proc, err := b.launcher.Launch(ctx, recipe.Program, recipe.Args)
	if err != nil {
		return &SetupError{Strategy: StrategyRecorder, Err: err}
	}

	b.chunkMu.Lock()
	b.chunks = nil
	b.readErr = nil
	b.chunkMu.Unlock()

	done := make(chan struct{})
	go b.read(proc.Stdout(), done)

	if b.cfg.StartupGrace > 0 {
		select {
		case <-done:
			werr := proc.Wait()
			if werr == nil {
				werr = errors.New("recorder exited immediately")
			}
			return &SetupError{Strategy: StrategyRecorder, Err: fmt.Errorf("%s: %w", recipe.Program, werr)}
		case <-time.After(b.cfg.StartupGrace):
		}
	}

	b.proc = proc
	b.recipe = recipe
	b.readDone = done

	name := ""
	if stream != nil {
		name = stream.DeviceName()
	}
	b.log.Info().
		Str("program", recipe.Program).
		Str("mime", recipe.Container.MIMEType()).
		Str("device", name).
		Msg("Recorder capture started")
	return nil
}

func (b *RecorderBackend) read(r io.Reader, done chan<- struct{}) {
	defer close(done)
	buf := make([]byte, readBlockSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			b.chunkMu.Lock()
			b.chunks = append(b.chunks, chunk)
			b.chunkMu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				b.chunkMu.Lock()
				b.readErr = err
				b.chunkMu.Unlock()
			}
			return
		}
	}
}

// Stop interrupts the recorder, waits for the container flush and decodes
// the result.
func (b *RecorderBackend) Stop(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.proc == nil {
		return nil, ErrNotRecording
	}

	start := time.Now()
	recipe := b.recipe
	if err := b.finish(ctx); err != nil {
		return nil, err
	}

	b.chunkMu.Lock()
	data := bytes.Join(b.chunks, nil)
	readErr := b.readErr
	b.chunks = nil
	b.chunkMu.Unlock()

	if readErr != nil {
		b.log.Warn().Err(readErr).Msg("Recorder output ended with a read error")
	}
	if len(data) == 0 {
		return nil, &decode.DecodeError{Container: recipe.Container, Reason: "recorder produced no output"}
	}
	b.log.Debug().Int("bytes", len(data)).Str("mime", recipe.Container.MIMEType()).Msg("Recorder output collected")

	wav, err := normalize.ToCanonicalWAV(decode.Blob{Data: data, MIMEType: recipe.Container.MIMEType()}, b.cfg.TargetRate)
	if err != nil {
		return nil, err
	}
	b.metrics.Finalized(string(StrategyRecorder), time.Since(start), (len(wav)-audio.HeaderSize)/2)
	return wav, nil
}

// Abort kills the recorder and discards its output.
func (b *RecorderBackend) Abort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.proc == nil {
		return
	}
	if err := b.proc.Kill(); err != nil {
		b.log.Debug().Err(err).Msg("Killing recorder during abort")
	}
	<-b.readDone
	_ = b.proc.Wait()
	b.proc = nil
	b.readDone = nil
	b.chunkMu.Lock()
	b.chunks = nil
	b.chunkMu.Unlock()
}

// finish signals the recorder and waits for EOF and exit, killing it when
// the flush timeout or ctx expires. b.mu must be held.
func (b *RecorderBackend) finish(ctx context.Context) error {
	proc, done := b.proc, b.readDone
	b.proc = nil
	b.readDone = nil

	if err := proc.Interrupt(); err != nil {
		b.log.Debug().Err(err).Msg("Interrupting recorder")
	}

	timer := time.NewTimer(b.cfg.FlushTimeout)
	defer timer.Stop()

	var ctxErr error
	select {
	case <-done:
	case <-timer.C:
		b.log.Warn().Dur("timeout", b.cfg.FlushTimeout).Msg("Recorder did not flush in time; killing")
		_ = proc.Kill()
		<-done
	case <-ctx.Done():
		_ = proc.Kill()
		<-done
		ctxErr = ctx.Err()
	}

	// Recorders exit non-zero when interrupted; the container is still valid.
	if err := proc.Wait(); err != nil {
		b.log.Debug().Err(err).Msg("Recorder exited")
	}
	return ctxErr
}
