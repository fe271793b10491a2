package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Audio.TargetSampleRate != 16000 {
		t.Errorf("Audio.TargetSampleRate = %d, want 16000", cfg.Audio.TargetSampleRate)
	}
	if cfg.Audio.Channels != 1 {
		t.Errorf("Audio.Channels = %d, want 1", cfg.Audio.Channels)
	}
	if cfg.Capture.Strategy != "auto" {
		t.Errorf("Capture.Strategy = %q, want %q", cfg.Capture.Strategy, "auto")
	}
	if cfg.Capture.MaxDuration != 8*time.Second {
		t.Errorf("Capture.MaxDuration = %v, want 8s", cfg.Capture.MaxDuration)
	}
	if len(cfg.Recorder.Containers) != 3 || cfg.Recorder.Containers[0] != "flac" {
		t.Errorf("Recorder.Containers = %v, want [flac ogg wav]", cfg.Recorder.Containers)
	}
	if cfg.Classify.MurmurThreshold != 0.5 {
		t.Errorf("Classify.MurmurThreshold = %v, want 0.5", cfg.Classify.MurmurThreshold)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
audio:
  target_sample_rate: 8000
  capture_sample_rate: 48000
capture:
  strategy: recorder
  device: USB Stethoscope
  max_duration: 15s
recorder:
  command: arecord
  containers: [wav]
  flush_timeout: 500ms
classify:
  api_base: http://localhost:8080
  murmur_threshold: 0.7
metrics:
  addr: ":9090"
log_level: debug
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Audio.TargetSampleRate != 8000 || cfg.Audio.CaptureSampleRate != 48000 {
		t.Errorf("Audio = %+v", cfg.Audio)
	}
	if cfg.Audio.Channels != 1 {
		t.Errorf("Audio.Channels = %d, want default 1", cfg.Audio.Channels)
	}
	if cfg.Capture.Strategy != "recorder" || cfg.Capture.Device != "USB Stethoscope" {
		t.Errorf("Capture = %+v", cfg.Capture)
	}
	if cfg.Capture.MaxDuration != 15*time.Second {
		t.Errorf("Capture.MaxDuration = %v, want 15s", cfg.Capture.MaxDuration)
	}
	if cfg.Recorder.Command != "arecord" || len(cfg.Recorder.Containers) != 1 {
		t.Errorf("Recorder = %+v", cfg.Recorder)
	}
	if cfg.Recorder.FlushTimeout != 500*time.Millisecond {
		t.Errorf("Recorder.FlushTimeout = %v, want 500ms", cfg.Recorder.FlushTimeout)
	}
	if cfg.Classify.APIBase != "http://localhost:8080" || cfg.Classify.MurmurThreshold != 0.7 {
		t.Errorf("Classify = %+v", cfg.Classify)
	}
	if cfg.Classify.Timeout != 60*time.Second {
		t.Errorf("Classify.Timeout = %v, want default 60s", cfg.Classify.Timeout)
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("Metrics.Addr = %q, want :9090", cfg.Metrics.Addr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	yamlContent := `
log_file: ~/logs/murmurcap.log
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	expected := filepath.Join(home, "logs/murmurcap.log")
	if cfg.LogFile != expected {
		t.Errorf("LogFile = %q, want %q", cfg.LogFile, expected)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("capture: [unterminated"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Error("Load() should reject malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid strategy",
			modify:  func(c *Config) { c.Capture.Strategy = "telepathy" },
			wantErr: true,
		},
		{
			name:    "empty strategy means auto",
			modify:  func(c *Config) { c.Capture.Strategy = "" },
			wantErr: false,
		},
		{
			name:    "zero target rate",
			modify:  func(c *Config) { c.Audio.TargetSampleRate = 0 },
			wantErr: true,
		},
		{
			name:    "zero capture rate",
			modify:  func(c *Config) { c.Audio.CaptureSampleRate = 0 },
			wantErr: true,
		},
		{
			name:    "zero channels",
			modify:  func(c *Config) { c.Audio.Channels = 0 },
			wantErr: true,
		},
		{
			name:    "negative max duration",
			modify:  func(c *Config) { c.Capture.MaxDuration = -time.Second },
			wantErr: true,
		},
		{
			name:    "unknown container",
			modify:  func(c *Config) { c.Recorder.Containers = []string{"aiff"} },
			wantErr: true,
		},
		{
			name:    "no containers",
			modify:  func(c *Config) { c.Recorder.Containers = nil },
			wantErr: true,
		},
		{
			name:    "zero flush timeout",
			modify:  func(c *Config) { c.Recorder.FlushTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "empty api base",
			modify:  func(c *Config) { c.Classify.APIBase = "" },
			wantErr: true,
		},
		{
			name:    "threshold above one",
			modify:  func(c *Config) { c.Classify.MurmurThreshold = 1.5 },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "invalid" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	// Use a temp dir as fake home to avoid touching real config
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "murmurcap", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}

	if !strings.HasPrefix(string(data), "# murmurcap") {
		t.Error("written config should start with header comment")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if cfg.Capture.MaxDuration != 8*time.Second {
		t.Errorf("written config Capture.MaxDuration = %v, want 8s", cfg.Capture.MaxDuration)
	}
	if cfg.Audio.TargetSampleRate != 16000 {
		t.Errorf("written config Audio.TargetSampleRate = %d, want 16000", cfg.Audio.TargetSampleRate)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("written config does not validate: %v", err)
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "murmurcap")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	existingContent := []byte("log_level: debug\n")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, existingContent, 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty string for existing file", path)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(data) != string(existingContent) {
		t.Error("WriteDefault() should not overwrite existing config file")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"unknown", zerolog.InfoLevel}, // defaults to info
		{"", zerolog.InfoLevel},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
