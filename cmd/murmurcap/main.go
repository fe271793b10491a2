package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/chaz8081/murmurcap/internal/config"
	"github.com/chaz8081/murmurcap/internal/logging"
	"github.com/chaz8081/murmurcap/internal/metrics"
)

const usage = `usage: murmurcap <command> [flags]

commands:
  record       record a heart sound from the microphone
  convert      convert an audio file to 16 kHz mono PCM16 WAV
  classify     send a WAV file to the classification service
  info         print the format of a WAV file
  devices      list capture devices
  init-config  write the default config file
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "record":
		err = runRecord(args)
	case "convert":
		err = runConvert(args)
	case "classify":
		err = runClassify(args)
	case "info":
		err = runInfo(args)
	case "devices":
		err = runDevices(args)
	case "init-config":
		err = runInitConfig(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "murmurcap: %v\n", err)
		}
		os.Exit(1)
	}
}

// app is the shared wiring every command starts from.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	metrics *metrics.Metrics
	closers []io.Closer
}

func newApp(configPath string) (*app, error) {
	cfg, source, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	log, closer, err := logging.New(logging.Options{
		Level: config.ParseLogLevel(cfg.LogLevel),
		File:  cfg.LogFile,
	})
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	log.Debug().Str("source", source).Msg("Config loaded")

	reg := prometheus.NewRegistry()
	a := &app{
		cfg:     cfg,
		log:     log,
		metrics: metrics.New(reg),
		closers: []io.Closer{closer},
	}
	if cfg.Metrics.Addr != "" {
		a.serveMetrics(reg)
	}
	return a, nil
}

func (a *app) serveMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Str("addr", srv.Addr).Msg("Metrics server stopped")
		}
	}()
	a.closers = append(a.closers, srv)
	a.log.Info().Str("addr", srv.Addr).Msg("Serving metrics")
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, "", fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, defaultPath, nil
	}

	return config.Default(), "defaults", nil
}

func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", "", "path to config file (default: ~/.config/murmurcap/config.yaml)")
}
