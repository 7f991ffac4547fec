// Package config loads server settings from a YAML file, a .env file and
// JUSTLRU_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/satmihir/justlru/internal/constants"
	"github.com/satmihir/justlru/lru"
)

const (
	EnvConfigPath     = "JUSTLRU_CONFIG"
	DefaultConfigPath = "configs/justlru.yaml"
)

var (
	ErrInvalidMemory    = errors.New("max_memory must be greater than zero")
	ErrInvalidShards    = errors.New("shards must be a positive integer")
	ErrInvalidRateLimit = errors.New("rate_limit must not be negative")
	ErrInvalidLogFormat = errors.New("log format must be json, console or auto")
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Cache  CacheConfig  `yaml:"cache"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Addr        string        `yaml:"addr"`
	DefaultTTL  time.Duration `yaml:"default_ttl"`
	RateLimit   float64       `yaml:"rate_limit"`
	RateBurst   int           `yaml:"rate_burst"`
	CORSOrigins []string      `yaml:"cors_origins"`
}

type CacheConfig struct {
	// Capacity is the maximum number of entries across all shards.
	Capacity  int    `yaml:"capacity"`
	MaxMemory uint64 `yaml:"max_memory"`
	Shards    int    `yaml:"shards"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads path, or $JUSTLRU_CONFIG, or configs/justlru.yaml. A missing
// file is not an error. Environment variables override the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = DefaultConfigPath
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("JUSTLRU_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("JUSTLRU_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("JUSTLRU_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"JUSTLRU_CAPACITY", &cfg.Cache.Capacity},
		{"JUSTLRU_SHARDS", &cfg.Cache.Shards},
	}
	for _, e := range ints {
		if v := os.Getenv(e.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", e.name, err)
			}
			*e.dst = n
		}
	}

	if v := os.Getenv("JUSTLRU_MAX_MEMORY"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing JUSTLRU_MAX_MEMORY: %w", err)
		}
		cfg.Cache.MaxMemory = n
	}
	if v := os.Getenv("JUSTLRU_RATE_LIMIT"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parsing JUSTLRU_RATE_LIMIT: %w", err)
		}
		cfg.Server.RateLimit = n
	}
	return nil
}

// applyDefaults fills unset fields. Negative capacities are left for
// Validate to reject.
func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = constants.DefaultListenAddr
	}
	if cfg.Server.DefaultTTL == 0 {
		cfg.Server.DefaultTTL = constants.DefaultEntryTTL
	}
	if cfg.Cache.Capacity == 0 {
		cfg.Cache.Capacity = constants.DefaultCapacity
	}
	if cfg.Cache.MaxMemory == 0 {
		cfg.Cache.MaxMemory = constants.DefaultMaxMemoryBytes
	}
	if cfg.Cache.Shards == 0 {
		cfg.Cache.Shards = constants.DefaultShards
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "auto"
	}
}

func (c *Config) Validate() error {
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity %d: %w", c.Cache.Capacity, lru.ErrInvalidCapacity)
	}
	if c.Cache.MaxMemory == 0 {
		return ErrInvalidMemory
	}
	if c.Cache.Shards <= 0 {
		return fmt.Errorf("cache.shards %d: %w", c.Cache.Shards, ErrInvalidShards)
	}
	if c.Server.RateLimit < 0 {
		return ErrInvalidRateLimit
	}
	switch c.Log.Format {
	case "json", "console", "auto":
	default:
		return fmt.Errorf("%q: %w", c.Log.Format, ErrInvalidLogFormat)
	}
	return nil
}
