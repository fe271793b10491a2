package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/chaz8081/murmurcap/internal/audio"
	"github.com/chaz8081/murmurcap/internal/audio/decode"
	"github.com/chaz8081/murmurcap/internal/audio/normalize"
	"github.com/chaz8081/murmurcap/internal/capture"
	"github.com/chaz8081/murmurcap/internal/classify"
	"github.com/chaz8081/murmurcap/internal/config"
	"github.com/chaz8081/murmurcap/internal/preview"
	"github.com/chaz8081/murmurcap/internal/session"
)

func runRecord(args []string) error {
	fs := flag.NewFlagSet("record", flag.ContinueOnError)
	configPath := configFlag(fs)
	out := fs.String("out", "", "output WAV path (default: <id>.wav)")
	doClassify := fs.Bool("classify", false, "classify the recording after it is saved")
	doPlay := fs.Bool("play", false, "play the recording back after it is saved")
	duration := fs.Duration("duration", 0, "stop automatically after this long (default: capture.max_duration)")
	strategy := fs.String("strategy", "", "capture strategy: auto, stream or recorder (default: capture.strategy)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	if *duration > 0 {
		cfg.Capture.MaxDuration = *duration
	}
	if *strategy != "" {
		cfg.Capture.Strategy = *strategy
	}
	strat, err := capture.ParseStrategy(cfg.Capture.Strategy)
	if err != nil {
		return err
	}

	ctrl := session.New(session.Options{
		Microphone: capture.NewMicrophone(cfg.Capture.Device, a.log),
		Stream:     capture.NewStreamBackend(capture.MalgoOpener{}, streamConfig(cfg), a.log, a.metrics),
		Recorder:   capture.NewRecorderBackend(capture.ExecLauncher{}, recorderConfig(cfg), a.log, a.metrics),
		Config: session.Config{
			Strategy:    strat,
			MaxDuration: cfg.Capture.MaxDuration,
			OnTick: func(d time.Duration) {
				fmt.Fprintf(os.Stderr, "\rRecording %s", session.FormatElapsed(d))
			},
		},
		Logger:  a.log,
		Metrics: a.metrics,
	})
	defer ctrl.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx := context.Background()
	if err := ctrl.Start(ctx); err != nil {
		var pe *capture.PermissionError
		if errors.As(err, &pe) {
			return fmt.Errorf("%w\n\nCheck that microphone access is granted to this terminal", err)
		}
		return err
	}
	fmt.Fprintf(os.Stderr, "Recording %s (Ctrl+C to stop)", session.FormatElapsed(0))

	select {
	case <-ctrl.Done():
	case <-sigCh:
	}
	fmt.Fprintln(os.Stderr)

	rec, err := ctrl.Stop(ctx)
	if err != nil {
		return err
	}
	if rec == nil {
		return errors.New("recording ended before it was finalized")
	}

	path := *out
	if path == "" {
		path = rec.FileName()
	}
	if err := os.WriteFile(path, rec.WAV, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Printf("Saved %s (%.1fs, %s)\n", path, rec.Duration.Seconds(), rec.Strategy)

	if *doPlay {
		if err := preview.NewPlayer(a.log).Play(ctx, rec.WAV); err != nil {
			a.log.Warn().Err(err).Msg("Playback failed")
		}
	}
	if *doClassify {
		return classifyAndPrint(ctx, a, rec.WAV, rec.FileName())
	}
	return nil
}

func streamConfig(cfg *config.Config) capture.StreamConfig {
	return capture.StreamConfig{
		SampleRate:  cfg.Audio.CaptureSampleRate,
		Channels:    cfg.Audio.Channels,
		BlockFrames: cfg.Audio.BlockFrames,
		QueueSize:   cfg.Audio.ChunkQueue,
		TargetRate:  cfg.Audio.TargetSampleRate,
	}
}

func recorderConfig(cfg *config.Config) capture.RecorderConfig {
	containers := make([]decode.Container, len(cfg.Recorder.Containers))
	for i, c := range cfg.Recorder.Containers {
		containers[i] = decode.Container(c)
	}
	return capture.RecorderConfig{
		Program:      cfg.Recorder.Command,
		Containers:   containers,
		SampleRate:   cfg.Audio.CaptureSampleRate,
		Channels:     cfg.Audio.Channels,
		Device:       cfg.Capture.Device,
		FlushTimeout: cfg.Recorder.FlushTimeout,
		StartupGrace: cfg.Recorder.StartupGrace,
		TargetRate:   cfg.Audio.TargetSampleRate,
	}
}

func runConvert(args []string) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	configPath := configFlag(fs)
	out := fs.String("out", "", "output WAV path (default: input name with .wav)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("convert: expected one input file")
	}
	in := fs.Arg(0)

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	wav, err := normalize.Upload(data, contentTypeFor(in, data), a.cfg.Audio.TargetSampleRate)
	if err != nil {
		return err
	}

	path := *out
	if path == "" {
		path = replaceExt(in, ".canonical.wav")
	}
	if err := os.WriteFile(path, wav, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	a.log.Info().Str("in", in).Str("out", path).Int("bytes", len(wav)).Msg("Converted")
	return nil
}

func runClassify(args []string) error {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("classify: expected one input file")
	}
	in := fs.Arg(0)

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	wav, err := normalize.Upload(data, contentTypeFor(in, data), a.cfg.Audio.TargetSampleRate)
	if err != nil {
		return err
	}
	return classifyAndPrint(context.Background(), a, wav, replaceExt(filepath.Base(in), ".wav"))
}

func classifyAndPrint(ctx context.Context, a *app, wav []byte, name string) error {
	client := classify.NewClient(classify.Config{
		APIBase: a.cfg.Classify.APIBase,
		Timeout: a.cfg.Classify.Timeout,
	}, a.log, a.metrics)

	res, err := client.Classify(ctx, wav, classify.Options{FileName: name})
	if err != nil {
		return err
	}

	for _, l := range res.Results {
		fmt.Printf("  %-20s %.3f\n", l.Label, l.Value)
	}
	fmt.Printf("  %-20s %.3f\n", "anomaly", res.Anomaly)
	if res.MurmurDetected(a.cfg.Classify.MurmurLabel, a.cfg.Classify.MurmurThreshold) {
		fmt.Println("Murmur detected")
	} else {
		fmt.Println("No murmur detected")
	}
	return nil
}

func runInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("info: expected one WAV file")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	h, err := audio.ParseHeader(data)
	if err != nil {
		return err
	}

	frames := 0
	if block := int(h.Channels) * int(h.BitsPerSample) / 8; block > 0 {
		frames = h.DataSize / block
	}
	fmt.Printf("format:      %d\n", h.AudioFormat)
	fmt.Printf("channels:    %d\n", h.Channels)
	fmt.Printf("sample rate: %d\n", h.SampleRate)
	fmt.Printf("bits:        %d\n", h.BitsPerSample)
	fmt.Printf("data bytes:  %d\n", h.DataSize)
	if h.SampleRate > 0 {
		fmt.Printf("duration:    %.3fs\n", float64(frames)/float64(h.SampleRate))
	}
	fmt.Printf("canonical:   %v\n", h.Canonical(audio.DefaultSampleRate))
	return nil
}

func runDevices(args []string) error {
	fs := flag.NewFlagSet("devices", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	names, err := capture.ListDevices()
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func runInitConfig(args []string) error {
	fs := flag.NewFlagSet("init-config", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := config.WriteDefault()
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
		return nil
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

// contentTypeFor picks a MIME type from the file extension, falling back to
// the leading bytes.
func contentTypeFor(path string, data []byte) string {
	c := decode.FromExtension(filepath.Ext(path))
	if c == decode.ContainerUnknown {
		c = decode.Sniff(data)
	}
	return c.MIMEType()
}

func replaceExt(path, ext string) string {
	return path[:len(path)-len(filepath.Ext(path))] + ext
}
