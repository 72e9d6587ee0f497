package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/cipher"
)

// Worker modes.
const (
	WorkerNone       = "none"
	WorkerInProcess  = "inprocess"
	WorkerSubprocess = "subprocess"
	WorkerGRPC       = "grpc"
)

// Alphabet names.
const (
	AlphabetStandard = "standard"
	AlphabetURL      = "url"
	AlphabetCustom   = "custom"
)

// Config captures the encodly configuration resolved from defaults, optional
// files, and environment overrides.
type Config struct {
	Alphabet  AlphabetConfig `yaml:"alphabet"`
	Chunked   bool           `yaml:"chunked"`
	ChunkSize int            `yaml:"chunk_size"`
	Batch     BatchConfig    `yaml:"batch"`
	Worker    WorkerConfig   `yaml:"worker"`
	Log       LogConfig      `yaml:"log"`
	Metrics   MetricsConfig  `yaml:"metrics"`
}

// AlphabetConfig selects the symbol set. Symbols, Padding and URLSafe only
// apply when Name is "custom".
type AlphabetConfig struct {
	Name    string `yaml:"name"`
	Symbols string `yaml:"symbols"`
	Padding string `yaml:"padding"`
	URLSafe bool   `yaml:"url_safe"`
}

// BatchConfig tunes the batch queue.
type BatchConfig struct {
	Concurrency int   `yaml:"concurrency"`
	MaxFileSize int64 `yaml:"max_file_size"`
}

// WorkerConfig selects where codec work runs.
type WorkerConfig struct {
	Mode   string `yaml:"mode"`
	Binary string `yaml:"binary"`
	Addr   string `yaml:"addr"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// MetricsConfig toggles the metrics dump.
type MetricsConfig struct {
	Enable bool `yaml:"enable"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Alphabet: AlphabetConfig{
			Name:    AlphabetStandard,
			Padding: "=",
		},
		Chunked:   true,
		ChunkSize: 1 << 20,
		Batch: BatchConfig{
			Concurrency: 3,
			MaxFileSize: 50 << 20,
		},
		Worker: WorkerConfig{
			Mode:   WorkerInProcess,
			Binary: "encodly-worker",
			Addr:   "127.0.0.1:50061",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load resolves the configuration using defaults, configuration files, and
// environment overrides. Files are applied in order:
//  1. ~/.encodly/config.yml
//  2. path when set, otherwise ./encodly.yml if it exists
//
// Environment variables prefixed with ENCODLY_ have the highest precedence.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := loadHomeConfig(&cfg); err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(path) != "" {
		if err := loadFile(&cfg, path, true); err != nil {
			return Config{}, err
		}
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("determine working directory: %w", err)
		}
		if err := loadFile(&cfg, filepath.Join(wd, "encodly.yml"), false); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadHomeConfig(cfg *Config) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return loadFile(cfg, filepath.Join(home, ".encodly", "config.yml"), false)
}

func loadFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := applyFileConfig(cfg, data); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

type fileConfig struct {
	Alphabet  *fileAlphabetConfig `yaml:"alphabet"`
	Chunked   *bool               `yaml:"chunked"`
	ChunkSize *int                `yaml:"chunk_size"`
	Batch     *fileBatchConfig    `yaml:"batch"`
	Worker    *fileWorkerConfig   `yaml:"worker"`
	Log       *fileLogConfig      `yaml:"log"`
	Metrics   *fileMetricsConfig  `yaml:"metrics"`
}

type fileAlphabetConfig struct {
	Name    *string `yaml:"name"`
	Symbols *string `yaml:"symbols"`
	Padding *string `yaml:"padding"`
	URLSafe *bool   `yaml:"url_safe"`
}

type fileBatchConfig struct {
	Concurrency *int   `yaml:"concurrency"`
	MaxFileSize *int64 `yaml:"max_file_size"`
}

type fileWorkerConfig struct {
	Mode   *string `yaml:"mode"`
	Binary *string `yaml:"binary"`
	Addr   *string `yaml:"addr"`
}

type fileLogConfig struct {
	Level  *string `yaml:"level"`
	Format *string `yaml:"format"`
	File   *string `yaml:"file"`
}

type fileMetricsConfig struct {
	Enable *bool `yaml:"enable"`
}

func applyFileConfig(cfg *Config, data []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}

	if a := fc.Alphabet; a != nil {
		if a.Name != nil {
			cfg.Alphabet.Name = strings.ToLower(strings.TrimSpace(*a.Name))
		}
		if a.Symbols != nil {
			cfg.Alphabet.Symbols = strings.TrimSpace(*a.Symbols)
		}
		if a.Padding != nil {
			cfg.Alphabet.Padding = *a.Padding
		}
		if a.URLSafe != nil {
			cfg.Alphabet.URLSafe = *a.URLSafe
		}
	}
	if fc.Chunked != nil {
		cfg.Chunked = *fc.Chunked
	}
	if fc.ChunkSize != nil {
		cfg.ChunkSize = *fc.ChunkSize
	}
	if b := fc.Batch; b != nil {
		if b.Concurrency != nil {
			cfg.Batch.Concurrency = *b.Concurrency
		}
		if b.MaxFileSize != nil {
			cfg.Batch.MaxFileSize = *b.MaxFileSize
		}
	}
	if w := fc.Worker; w != nil {
		if w.Mode != nil {
			cfg.Worker.Mode = strings.ToLower(strings.TrimSpace(*w.Mode))
		}
		if w.Binary != nil {
			cfg.Worker.Binary = strings.TrimSpace(*w.Binary)
		}
		if w.Addr != nil {
			cfg.Worker.Addr = strings.TrimSpace(*w.Addr)
		}
	}
	if l := fc.Log; l != nil {
		if l.Level != nil {
			cfg.Log.Level = strings.TrimSpace(*l.Level)
		}
		if l.Format != nil {
			cfg.Log.Format = strings.ToLower(strings.TrimSpace(*l.Format))
		}
		if l.File != nil {
			cfg.Log.File = strings.TrimSpace(*l.File)
		}
	}
	if fc.Metrics != nil && fc.Metrics.Enable != nil {
		cfg.Metrics.Enable = *fc.Metrics.Enable
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if val := strings.TrimSpace(os.Getenv("ENCODLY_ALPHABET")); val != "" {
		cfg.Alphabet.Name = strings.ToLower(val)
	}
	if val := strings.TrimSpace(os.Getenv("ENCODLY_SYMBOLS")); val != "" {
		cfg.Alphabet.Symbols = val
	}
	// An empty ENCODLY_PADDING disables padding, so presence matters here.
	if val, ok := os.LookupEnv("ENCODLY_PADDING"); ok {
		cfg.Alphabet.Padding = val
	}
	if err := envBool("ENCODLY_URL_SAFE", &cfg.Alphabet.URLSafe); err != nil {
		return err
	}
	if err := envBool("ENCODLY_CHUNKED", &cfg.Chunked); err != nil {
		return err
	}
	if val := strings.TrimSpace(os.Getenv("ENCODLY_CHUNK_SIZE")); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("ENCODLY_CHUNK_SIZE: %w", err)
		}
		cfg.ChunkSize = n
	}
	if val := strings.TrimSpace(os.Getenv("ENCODLY_BATCH_CONCURRENCY")); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("ENCODLY_BATCH_CONCURRENCY: %w", err)
		}
		cfg.Batch.Concurrency = n
	}
	if val := strings.TrimSpace(os.Getenv("ENCODLY_MAX_FILE_SIZE")); val != "" {
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("ENCODLY_MAX_FILE_SIZE: %w", err)
		}
		cfg.Batch.MaxFileSize = n
	}
	if val := strings.TrimSpace(os.Getenv("ENCODLY_WORKER")); val != "" {
		cfg.Worker.Mode = strings.ToLower(val)
	}
	if val := strings.TrimSpace(os.Getenv("ENCODLY_WORKER_BIN")); val != "" {
		cfg.Worker.Binary = val
	}
	if val := strings.TrimSpace(os.Getenv("ENCODLY_WORKER_ADDR")); val != "" {
		cfg.Worker.Addr = val
	}
	if val := strings.TrimSpace(os.Getenv("ENCODLY_LOG_LEVEL")); val != "" {
		cfg.Log.Level = val
	}
	if val := strings.TrimSpace(os.Getenv("ENCODLY_LOG_FORMAT")); val != "" {
		cfg.Log.Format = strings.ToLower(val)
	}
	if val := strings.TrimSpace(os.Getenv("ENCODLY_LOG_FILE")); val != "" {
		cfg.Log.File = val
	}
	return envBool("ENCODLY_METRICS", &cfg.Metrics.Enable)
}

func envBool(key string, dst *bool) error {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return nil
	}
	parsed, err := parseBool(val)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = parsed
	return nil
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	if _, err := c.ResolveAlphabet(); err != nil {
		return err
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.Batch.Concurrency <= 0 {
		return fmt.Errorf("batch.concurrency must be positive, got %d", c.Batch.Concurrency)
	}
	if c.Batch.MaxFileSize <= 0 {
		return fmt.Errorf("batch.max_file_size must be positive, got %d", c.Batch.MaxFileSize)
	}
	switch c.Worker.Mode {
	case WorkerNone, WorkerInProcess:
	case WorkerSubprocess:
		if c.Worker.Binary == "" {
			return errors.New("worker.binary is required for subprocess mode")
		}
	case WorkerGRPC:
		if c.Worker.Addr == "" {
			return errors.New("worker.addr is required for grpc mode")
		}
	default:
		return fmt.Errorf("unknown worker mode %q", c.Worker.Mode)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// ResolveAlphabet builds the configured alphabet.
func (c Config) ResolveAlphabet() (*cipher.Alphabet, error) {
	switch c.Alphabet.Name {
	case "", AlphabetStandard:
		return cipher.Standard, nil
	case AlphabetURL, "url-safe", "urlsafe":
		return cipher.URLSafe, nil
	case AlphabetCustom:
		return cipher.NewAlphabet(c.Alphabet.Symbols, c.Alphabet.Padding, c.Alphabet.URLSafe)
	default:
		return nil, fmt.Errorf("unknown alphabet %q", c.Alphabet.Name)
	}
}

// ParseLevel maps a level name onto slog.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", level)
	}
	return l, nil
}

func parseBool(val string) (bool, error) {
	v := strings.TrimSpace(strings.ToLower(val))
	switch v {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean: %s", val)
	}
}
