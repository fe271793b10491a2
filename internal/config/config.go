package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/chaz8081/murmurcap/internal/capture"
	"github.com/chaz8081/murmurcap/internal/classify"
)

// Config holds all application configuration.
type Config struct {
	Audio    AudioConfig    `yaml:"audio"`
	Capture  CaptureConfig  `yaml:"capture"`
	Recorder RecorderConfig `yaml:"recorder"`
	Classify ClassifyConfig `yaml:"classify"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	LogLevel string         `yaml:"log_level"`
	LogFile  string         `yaml:"log_file"`
}

// AudioConfig holds sample format settings.
type AudioConfig struct {
	TargetSampleRate  int `yaml:"target_sample_rate"`
	CaptureSampleRate int `yaml:"capture_sample_rate"`
	Channels          int `yaml:"channels"`
	BlockFrames       int `yaml:"block_frames"`
	ChunkQueue        int `yaml:"chunk_queue"`
}

// CaptureConfig holds session settings.
type CaptureConfig struct {
	Strategy    string        `yaml:"strategy"` // "auto", "stream" or "recorder"
	Device      string        `yaml:"device"`
	MaxDuration time.Duration `yaml:"max_duration"`
}

// RecorderConfig holds settings for the external recorder fallback.
type RecorderConfig struct {
	Command      string        `yaml:"command"` // empty picks the first tool on PATH
	Containers   []string      `yaml:"containers"`
	FlushTimeout time.Duration `yaml:"flush_timeout"`
	StartupGrace time.Duration `yaml:"startup_grace"`
}

// ClassifyConfig holds classification service settings.
type ClassifyConfig struct {
	APIBase         string        `yaml:"api_base"`
	Timeout         time.Duration `yaml:"timeout"`
	MurmurLabel     string        `yaml:"murmur_label"`
	MurmurThreshold float64       `yaml:"murmur_threshold"`
}

// MetricsConfig holds the Prometheus listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "murmurcap")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			TargetSampleRate:  16000,
			CaptureSampleRate: 44100,
			Channels:          1,
			BlockFrames:       1024,
			ChunkQueue:        64,
		},
		Capture: CaptureConfig{
			Strategy:    string(capture.StrategyAuto),
			MaxDuration: 8 * time.Second,
		},
		Recorder: RecorderConfig{
			Containers:   []string{"flac", "ogg", "wav"},
			FlushTimeout: 3 * time.Second,
			StartupGrace: 250 * time.Millisecond,
		},
		Classify: ClassifyConfig{
			APIBase:         classify.DefaultAPIBase,
			Timeout:         60 * time.Second,
			MurmurLabel:     classify.DefaultMurmurLabel,
			MurmurThreshold: classify.DefaultMurmurThreshold,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in log_file is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.LogFile = expandTilde(cfg.LogFile)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Audio.TargetSampleRate <= 0 {
		return fmt.Errorf("audio.target_sample_rate must be > 0")
	}
	if c.Audio.CaptureSampleRate <= 0 {
		return fmt.Errorf("audio.capture_sample_rate must be > 0")
	}
	if c.Audio.Channels <= 0 {
		return fmt.Errorf("audio.channels must be > 0")
	}
	if c.Audio.BlockFrames < 0 || c.Audio.ChunkQueue < 0 {
		return fmt.Errorf("audio.block_frames and audio.chunk_queue must not be negative")
	}

	if _, err := capture.ParseStrategy(c.Capture.Strategy); err != nil {
		return fmt.Errorf("capture.strategy: %w", err)
	}
	if c.Capture.MaxDuration < 0 {
		return fmt.Errorf("capture.max_duration must not be negative")
	}

	if len(c.Recorder.Containers) == 0 {
		return fmt.Errorf("recorder.containers must not be empty")
	}
	for _, ct := range c.Recorder.Containers {
		switch ct {
		case "flac", "ogg", "wav":
		default:
			return fmt.Errorf("recorder.containers must be flac, ogg or wav, got %q", ct)
		}
	}
	if c.Recorder.FlushTimeout <= 0 {
		return fmt.Errorf("recorder.flush_timeout must be > 0")
	}

	if c.Classify.APIBase == "" {
		return fmt.Errorf("classify.api_base must not be empty")
	}
	if c.Classify.MurmurThreshold < 0 || c.Classify.MurmurThreshold > 1 {
		return fmt.Errorf("classify.murmur_threshold must be within [0, 1], got %v", c.Classify.MurmurThreshold)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

const defaultHeader = `# murmurcap configuration
# Durations use Go syntax (8s, 250ms). capture.strategy is auto, stream or recorder.
`

// WriteDefault writes the default config to DefaultConfigPath and returns
// its path. When a config file already exists it returns ("", nil).
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// ParseLogLevel maps a log_level value to a zerolog level. Unknown values
// map to info.
func ParseLogLevel(s string) zerolog.Level {
	switch s {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
