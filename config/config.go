// Package config loads the fibre CLI configuration from TOML.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/fibre-go/errors"
)

// Defaults applied before the file is overlaid.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
	DefaultPath      = "usb"
	DefaultTimeout   = 10 * time.Second
)

// Config is the resolved CLI configuration.
type Config struct {
	LogLevel  string
	LogFormat string

	// Wasm is the path of the libfibre WebAssembly build.
	Wasm             string
	MemoryLimitPages uint32
	DisableWASI      bool

	// Path is the discovery filter passed to the engine.
	Path         string
	SerialNumber string
	Timeout      time.Duration

	// MetricsAddr serves Prometheus metrics when non-empty.
	MetricsAddr string
}

// fibre.toml key mapping.
type fileConfig struct {
	LogLevel         string `toml:"log_level"`
	LogFormat        string `toml:"log_format"`
	Wasm             string `toml:"wasm"`
	MemoryLimitPages uint32 `toml:"memory_limit_pages"`
	DisableWASI      bool   `toml:"disable_wasi"`
	Path             string `toml:"path"`
	SerialNumber     string `toml:"serial_number"`
	Timeout          string `toml:"timeout"`
	MetricsAddr      string `toml:"metrics_addr"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
		Path:      DefaultPath,
		Timeout:   DefaultTimeout,
	}
}

// Load reads path and overlays it on Default. A relative wasm path is
// resolved against the directory of the config file.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidArgument, err, "load "+path)
	}
	cfg, err := overlay(Default(), raw, meta)
	if err != nil {
		return Config{}, err
	}
	if cfg.Wasm != "" && !filepath.IsAbs(cfg.Wasm) {
		cfg.Wasm = filepath.Join(filepath.Dir(path), cfg.Wasm)
	}
	return cfg, cfg.Validate()
}

// Parse decodes TOML text. Relative paths are kept as written.
func Parse(data string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidArgument, err, "parse config")
	}
	cfg, err := overlay(Default(), raw, meta)
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func overlay(cfg Config, raw fileConfig, meta toml.MetaData) (Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.InvalidArgument(errors.PhaseConfig,
			fmt.Sprintf("unknown key %q", undecoded[0].String()))
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_format") {
		cfg.LogFormat = strings.TrimSpace(raw.LogFormat)
	}
	if meta.IsDefined("wasm") {
		cfg.Wasm = strings.TrimSpace(raw.Wasm)
	}
	if meta.IsDefined("memory_limit_pages") {
		cfg.MemoryLimitPages = raw.MemoryLimitPages
	}
	if meta.IsDefined("disable_wasi") {
		cfg.DisableWASI = raw.DisableWASI
	}
	if meta.IsDefined("path") {
		cfg.Path = strings.TrimSpace(raw.Path)
	}
	if meta.IsDefined("serial_number") {
		cfg.SerialNumber = strings.ToUpper(strings.TrimSpace(raw.SerialNumber))
	}
	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidArgument, err, "timeout")
		}
		cfg.Timeout = d
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	return cfg, nil
}

// Validate checks field values.
func (c Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.InvalidArgument(errors.PhaseConfig, fmt.Sprintf("log_level %q", c.LogLevel))
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return errors.InvalidArgument(errors.PhaseConfig,
			fmt.Sprintf("log_format %q (expected console or json)", c.LogFormat))
	}
	if c.Path == "" {
		return errors.InvalidArgument(errors.PhaseConfig, "path must not be empty")
	}
	if c.Timeout < 0 {
		return errors.InvalidArgument(errors.PhaseConfig, "timeout must not be negative")
	}
	return nil
}

// Logger builds a zap logger for the configured level and format.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidArgument, err, "log_level")
	}
	zc := zap.NewProductionConfig()
	if c.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
