package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/config"
	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/engine"
	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/logging"
	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/observability/metrics"
	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/rpc"
	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/worker"
)

// globalFlags are accepted by every command and override the loaded config.
type globalFlags struct {
	configPath string
	alphabet   string
	symbols    string
	padding    string
	worker     string
	workerAddr string
	chunked    bool
	logLevel   string
	metrics    bool
}

func newFlagSet(name string, g *globalFlags) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&g.configPath, "config", "", "path to a YAML config file (default ./encodly.yml)")
	fs.StringVar(&g.alphabet, "alphabet", "", "alphabet: standard, url or custom")
	fs.StringVar(&g.symbols, "symbols", "", "the 64 symbols of a custom alphabet")
	fs.StringVar(&g.padding, "padding", "=", "padding character of a custom alphabet; empty disables padding")
	fs.StringVar(&g.worker, "worker", "", "where work runs: none, inprocess, subprocess or grpc")
	fs.StringVar(&g.workerAddr, "worker-addr", "", "address of a gRPC worker")
	fs.BoolVar(&g.chunked, "chunked", true, "encode in chunks with progress reporting")
	fs.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn or error")
	fs.BoolVar(&g.metrics, "metrics", false, "print metrics to stderr on exit")
	return fs
}

func (g *globalFlags) resolve(fs *pflag.FlagSet) (config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if fs.Changed("alphabet") {
		cfg.Alphabet.Name = g.alphabet
	}
	if fs.Changed("symbols") {
		cfg.Alphabet.Symbols = g.symbols
		if !fs.Changed("alphabet") {
			cfg.Alphabet.Name = config.AlphabetCustom
		}
	}
	if fs.Changed("padding") {
		cfg.Alphabet.Padding = g.padding
	}
	if fs.Changed("worker") {
		cfg.Worker.Mode = g.worker
	}
	if fs.Changed("worker-addr") {
		cfg.Worker.Addr = g.workerAddr
		if !fs.Changed("worker") {
			cfg.Worker.Mode = config.WorkerGRPC
		}
	}
	if fs.Changed("chunked") {
		cfg.Chunked = g.chunked
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if fs.Changed("metrics") {
		cfg.Metrics.Enable = g.metrics
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// session bundles the logger and engine a command runs with.
type session struct {
	cfg     config.Config
	logger  *logging.Logger
	engine  *engine.Engine
	options engine.Options
}

func openSession(ctx context.Context, cfg config.Config) (*session, error) {
	logOpts := []logging.Option{logging.WithLevel(cfg.Log.Level), logging.WithFormat(cfg.Log.Format)}
	if cfg.Log.File != "" {
		logOpts = append(logOpts, logging.WithFile(cfg.Log.File))
	}
	if stderr != os.Stderr {
		logOpts = append(logOpts, logging.WithoutStderr(), logging.WithWriter(stderr))
	}
	logger, err := logging.New(productName, logOpts...)
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	alphabet, err := cfg.ResolveAlphabet()
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	engineOpts := []engine.Option{engine.WithLogger(logger.Logger)}
	switch cfg.Worker.Mode {
	case config.WorkerNone:
	case config.WorkerInProcess:
		engineOpts = append(engineOpts, engine.WithPort(worker.NewInProcess(logger.With("transport", "inprocess"))))
	case config.WorkerSubprocess:
		port, err := worker.Spawn(ctx, worker.SpawnConfig{
			Binary: cfg.Worker.Binary,
			Stderr: stderr,
			Logger: logger.With("transport", "subprocess"),
			Env:    map[string]string{"ENCODLY_LOG_LEVEL": cfg.Log.Level},
		})
		if err != nil {
			_ = logger.Close()
			return nil, err
		}
		engineOpts = append(engineOpts, engine.WithPort(port))
	case config.WorkerGRPC:
		port, err := rpc.Dial(ctx, cfg.Worker.Addr)
		if err != nil {
			_ = logger.Close()
			return nil, err
		}
		engineOpts = append(engineOpts, engine.WithPort(port))
	}
	logger.Debug("session opened", "worker", cfg.Worker.Mode, "alphabet", alphabet.String(), "chunked", cfg.Chunked)

	return &session{
		cfg:    cfg,
		logger: logger,
		engine: engine.New(engineOpts...),
		options: engine.Options{
			Alphabet:  alphabet,
			Chunked:   cfg.Chunked,
			ChunkSize: cfg.ChunkSize,
		},
	}, nil
}

func (s *session) close() {
	if err := s.engine.Destroy(); err != nil {
		s.logger.Warn("shut down worker", "error", err)
	}
	if s.cfg.Metrics.Enable {
		if err := metrics.Write(stderr); err != nil {
			s.logger.Warn("write metrics", "error", err)
		}
	}
	_ = s.logger.Close()
}

// prepare parses args, loads config and opens a session. When the session is
// nil the command should exit with code.
func prepare(ctx context.Context, fs *pflag.FlagSet, g *globalFlags, args []string) (*session, int) {
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil, 0
		}
		return nil, 2
	}
	cfg, err := g.resolve(fs)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return nil, 2
	}
	s, err := openSession(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "start engine: %v\n", err)
		return nil, 1
	}
	return s, 0
}
