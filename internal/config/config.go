// Package config loads screener configuration from YAML, environment
// variables and an optional .env file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Feed modes.
const (
	FeedModePoll   = "poll"
	FeedModeStream = "stream"
)

// Config is the complete screener configuration.
type Config struct {
	Feed       FeedConfig      `yaml:"feed"`
	Storage    StorageConfig   `yaml:"storage"`
	HTTP       HTTPConfig      `yaml:"http"`
	Screening  ScreeningConfig `yaml:"screening"`
	StaleAfter time.Duration   `yaml:"stale_after"`
	Catalog    string          `yaml:"catalog"`     // CSV or YAML instrument list
	PresetFile string          `yaml:"preset_file"` // extra presets, optional
}

// FeedConfig selects and configures the quote source.
type FeedConfig struct {
	Mode           string        `yaml:"mode"` // poll | stream
	Endpoint       string        `yaml:"endpoint"`
	Token          string        `yaml:"token"`
	InstrumentKeys []string      `yaml:"instrument_keys"` // empty: every catalog key
	PollInterval   time.Duration `yaml:"poll_interval"`
	Seed           int64         `yaml:"seed"`       // mock poll feed
	Volatility     float64       `yaml:"volatility"` // mock poll feed
}

// StorageConfig selects the persistence backends.
type StorageConfig struct {
	UseMemory            bool          `yaml:"use_memory"`
	PostgresDSN          string        `yaml:"postgres_dsn"`
	ClickHouseDSN        string        `yaml:"clickhouse_dsn"`
	ArchiveFlushInterval time.Duration `yaml:"archive_flush_interval"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// ScreeningConfig bounds session resources.
type ScreeningConfig struct {
	MaxSessions  int `yaml:"max_sessions"`
	HistoryLimit int `yaml:"history_limit"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Feed: FeedConfig{
			Mode:         FeedModePoll,
			PollInterval: 5 * time.Second,
			Seed:         1,
			Volatility:   0.01,
		},
		Storage: StorageConfig{
			UseMemory:            true,
			ArchiveFlushInterval: 5 * time.Second,
		},
		HTTP:       HTTPConfig{Addr: ":8080"},
		Screening:  ScreeningConfig{MaxSessions: 1000, HistoryLimit: 64},
		StaleAfter: 30 * time.Second,
	}
}

// Load builds a config from defaults, the YAML file at path (optional)
// and the process environment, in increasing precedence.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Parse decodes YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.decode(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from environment variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("SCREENER_FEED_MODE", &c.Feed.Mode)
	str("SCREENER_FEED_ENDPOINT", &c.Feed.Endpoint)
	str("SCREENER_FEED_TOKEN", &c.Feed.Token)
	str("POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("CLICKHOUSE_DSN", &c.Storage.ClickHouseDSN)
	str("SCREENER_HTTP_ADDR", &c.HTTP.Addr)
	str("SCREENER_CATALOG", &c.Catalog)
	str("SCREENER_PRESET_FILE", &c.PresetFile)

	if v, ok := lookup("SCREENER_INSTRUMENT_KEYS"); ok && v != "" {
		c.Feed.InstrumentKeys = splitList(v)
	}
	if v, ok := lookup("SCREENER_USE_MEMORY"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SCREENER_USE_MEMORY: %w", err)
		}
		c.Storage.UseMemory = b
	}

	for key, dst := range map[string]*time.Duration{
		"SCREENER_POLL_INTERVAL":          &c.Feed.PollInterval,
		"SCREENER_STALE_AFTER":            &c.StaleAfter,
		"SCREENER_ARCHIVE_FLUSH_INTERVAL": &c.Storage.ArchiveFlushInterval,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	var problems []string

	switch c.Feed.Mode {
	case FeedModePoll:
		if c.Feed.PollInterval <= 0 {
			problems = append(problems, "feed.poll_interval must be positive")
		}
	case FeedModeStream:
		if c.Feed.Endpoint == "" {
			problems = append(problems, "feed.endpoint is required in stream mode")
		}
	default:
		problems = append(problems, fmt.Sprintf("feed.mode %q must be %q or %q", c.Feed.Mode, FeedModePoll, FeedModeStream))
	}

	if c.StaleAfter <= 0 {
		problems = append(problems, "stale_after must be positive")
	}
	if c.Catalog == "" && (c.Storage.UseMemory || c.Storage.PostgresDSN == "") {
		problems = append(problems, "catalog is required without a postgres catalog")
	}
	if !c.Storage.UseMemory && c.Storage.ClickHouseDSN != "" && c.Storage.ArchiveFlushInterval <= 0 {
		problems = append(problems, "storage.archive_flush_interval must be positive")
	}
	if c.Screening.MaxSessions < 0 {
		problems = append(problems, "screening.max_sessions must not be negative")
	}
	if c.HTTP.Addr == "" {
		problems = append(problems, "http.addr is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
