// Package config loads the optional rplay.yaml file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is read from the working directory when no path is given.
const DefaultFile = "rplay.yaml"

// Default values used when a field is unset.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultStartTimeout = 60 * time.Second
	DefaultMaxOutput    = 10000 // characters
	DefaultImageWidth   = 504
	DefaultImageHeight  = 504
	DefaultLocale       = "en"
	DefaultAddr         = ":8080"
	DefaultSessionTTL   = 30 * time.Minute
	DefaultMaxSessions  = 16
)

// Config holds the parsed rplay.yaml. All fields are optional; zero values
// represent defaults.
type Config struct {
	RawTimeout      string       `yaml:"timeout"`       // e.g. "30s"
	RawStartTimeout string       `yaml:"start_timeout"` // e.g. "1m"
	RawMaxOutput    int          `yaml:"max_output"`    // characters
	Locale          string       `yaml:"locale"`        // BCP 47, e.g. "fr-CA"
	Image           ImageConfig  `yaml:"image"`
	Engine          EngineConfig `yaml:"engine"`
	Server          ServerConfig `yaml:"server"`
}

// ImageConfig sets the size of captured plots in pixels.
type ImageConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// EngineConfig selects and configures the R interpreter.
type EngineConfig struct {
	Module  string        `yaml:"module"`   // path to R.wasm
	Rscript string        `yaml:"rscript"`  // host Rscript; takes precedence over module
	Memory  string        `yaml:"memory"`   // 64mb, 256mb, 512mb, 1gb, 2gb
	NoCache bool          `yaml:"no_cache"` // disable the compilation cache
	Mounts  []MountConfig `yaml:"mounts"`
}

// MountConfig exposes a host directory to the WASM interpreter.
type MountConfig struct {
	Guest string `yaml:"guest"`
	Host  string `yaml:"host"`
}

// ServerConfig controls rplay serve.
type ServerConfig struct {
	Addr          string `yaml:"addr"`
	RawSessionTTL string `yaml:"session_ttl"`
	MaxSessions   int    `yaml:"max_sessions"`
}

// Timeout returns the per-execution timeout or the default.
func (c *Config) Timeout() time.Duration {
	return parseDuration(c.RawTimeout, DefaultTimeout)
}

// StartTimeout returns how long to wait for an interpreter to start.
func (c *Config) StartTimeout() time.Duration {
	return parseDuration(c.RawStartTimeout, DefaultStartTimeout)
}

// MaxOutput returns the output truncation limit or the default.
func (c *Config) MaxOutput() int {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return DefaultMaxOutput
}

// ImageSize returns the configured plot size, falling back to the default
// for each unset dimension.
func (c *Config) ImageSize() (width, height int) {
	width, height = c.Image.Width, c.Image.Height
	if width <= 0 {
		width = DefaultImageWidth
	}
	if height <= 0 {
		height = DefaultImageHeight
	}
	return width, height
}

// Language returns the locale used for error messages.
func (c *Config) Language() string {
	if c.Locale != "" {
		return c.Locale
	}
	return DefaultLocale
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	if c.Server.Addr != "" {
		return c.Server.Addr
	}
	return DefaultAddr
}

// SessionTTL returns how long an idle HTTP session is kept.
func (c *Config) SessionTTL() time.Duration {
	return parseDuration(c.Server.RawSessionTTL, DefaultSessionTTL)
}

// MaxSessions returns the limit on concurrent HTTP sessions.
func (c *Config) MaxSessions() int {
	if c.Server.MaxSessions > 0 {
		return c.Server.MaxSessions
	}
	return DefaultMaxSessions
}

func parseDuration(raw string, def time.Duration) time.Duration {
	if raw != "" {
		d, err := time.ParseDuration(raw)
		if err == nil && d > 0 {
			return d
		}
	}
	return def
}

// Load reads the config file at path. An empty path reads DefaultFile from
// the working directory, and a missing DefaultFile yields a default Config.
// An explicitly named file must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}
