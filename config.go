package gidref

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/wire"
)

// Config is the file form of a locality's options.
//
//	locality_id = 1
//	log_level = "info"
//	log_format = "json"
//
//	[dispatcher]
//	max_inflight = 64
//	rate = 1000.0
//
//	[cache]
//	capacity = 4096
//	memory_limit = 1048576
//
//	[wire]
//	compression = "zstd"
//
//	[authority]
//	store = "dynamodb"
//	table = "gid-credits"
type Config struct {
	LocalityID core.LocalityID `toml:"locality_id"`
	LogLevel   string          `toml:"log_level"`
	LogFormat  string          `toml:"log_format"`

	Dispatcher DispatcherConfig `toml:"dispatcher"`
	Cache      CacheConfig      `toml:"cache"`
	Wire       WireConfig       `toml:"wire"`
	Authority  AuthorityConfig  `toml:"authority"`
}

// DispatcherConfig bounds background credit traffic.
type DispatcherConfig struct {
	MaxInflight int64   `toml:"max_inflight"`
	Rate        float64 `toml:"rate"`
}

// CacheConfig sizes the address cache. A negative capacity disables it.
type CacheConfig struct {
	Capacity    int   `toml:"capacity"`
	MemoryLimit int64 `toml:"memory_limit"`
}

// WireConfig selects the parcel encoding.
type WireConfig struct {
	Compression string `toml:"compression"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		Cache:     CacheConfig{Capacity: DefaultCacheCapacity},
		Wire:      WireConfig{Compression: wire.CompressionNone.String()},
		Authority: AuthorityConfig{Store: StoreMemory},
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := checkUndecoded(meta); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseConfig decodes TOML text on top of DefaultConfig.
func ParseConfig(data string) (Config, error) {
	cfg := DefaultConfig()
	meta, err := toml.Decode(data, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := checkUndecoded(meta); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func checkUndecoded(meta toml.MetaData) error {
	keys := meta.Undecoded()
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	return core.NewError(core.ErrBadParameter, "gidref.LoadConfig",
		"unknown keys: "+strings.Join(names, ", "))
}

// Options converts the configuration into locality options.
func (c Config) Options() ([]Option, error) {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}

	var logger *Logger
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "", "text":
		logger = NewTextLogger(os.Stderr, level)
	case "json":
		logger = NewJSONLogger(os.Stderr, level)
	case "none":
		logger = NoopLogger()
	default:
		return nil, core.NewError(core.ErrBadParameter, "gidref.Config", fmt.Sprintf("unknown log format %q", c.LogFormat))
	}

	compression, err := wire.ParseCompression(c.Wire.Compression)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithLocalityID(c.LocalityID),
		WithLogger(logger),
		WithInitialCreditLog2(c.Authority.InitialCreditLog2),
		WithMaxInflightDecrements(c.Dispatcher.MaxInflight),
		WithDecrementRate(c.Dispatcher.Rate),
		WithCacheCapacity(c.Cache.Capacity),
		WithCacheMemoryLimit(c.Cache.MemoryLimit),
		WithCompression(compression),
	}
	return opts, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, core.WrapError(core.ErrBadParameter, "gidref.Config", err)
	}
	return level, nil
}
