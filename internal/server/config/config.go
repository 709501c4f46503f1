// Package config loads the server configuration: defaults, then an optional
// YAML file, then SCOREBOARD_* environment variables, then command-line flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const envPrefix = "SCOREBOARD_"

// DevSecret signs tokens in development mode so they survive restarts
const DevSecret = "dev-secret-minimum-32-characters-long"

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Log     LogConfig     `yaml:"log"`
	Match   MatchConfig   `yaml:"match"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Dev          bool          `yaml:"dev"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	PIDFile      string        `yaml:"pid_file"`
	PIDLock      bool          `yaml:"pid_lock"`
	Serve        bool          `yaml:"serve"`
	WebHost      string        `yaml:"web_host"`
	WebPort      int           `yaml:"web_port"`
}

type StorageConfig struct {
	// Path of the SQLite file; empty keeps all state in memory
	Path string `yaml:"path"`
}

type AuthConfig struct {
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type MatchConfig struct {
	SyncInterval time.Duration `yaml:"sync_interval"`
	Halftime     time.Duration `yaml:"halftime"`
	AtomicScores bool          `yaml:"atomic_scores"`
	Debounce     time.Duration `yaml:"debounce"`
	PageSize     int           `yaml:"page_size"`
	Timezone     string        `yaml:"timezone"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:         "localhost",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 35 * time.Second,
			IdleTimeout:  60 * time.Second,
			WebHost:      "localhost",
			WebPort:      9090,
		},
		Auth: AuthConfig{TokenTTL: 7 * 24 * time.Hour},
		Log:  LogConfig{Level: "info"},
		Match: MatchConfig{
			SyncInterval: 10 * time.Second,
			Halftime:     5 * time.Minute,
			Debounce:     300 * time.Millisecond,
			PageSize:     10,
		},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// LoadFile overlays a YAML file onto cfg; a missing path is an error
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

type envVar struct {
	name string
	set  func(string) error
}

func (c *Config) envVars() []envVar {
	return []envVar{
		{"HOST", setString(&c.Server.Host)},
		{"PORT", setInt(&c.Server.Port)},
		{"DEV", setBool(&c.Server.Dev)},
		{"PID_FILE", setString(&c.Server.PIDFile)},
		{"STORAGE_PATH", setString(&c.Storage.Path)},
		{"AUTH_SECRET", setString(&c.Auth.Secret)},
		{"TOKEN_TTL", setDuration(&c.Auth.TokenTTL)},
		{"LOG_LEVEL", setString(&c.Log.Level)},
		{"LOG_JSON", setBool(&c.Log.JSON)},
		{"SYNC_INTERVAL", setDuration(&c.Match.SyncInterval)},
		{"HALFTIME", setDuration(&c.Match.Halftime)},
		{"ATOMIC_SCORES", setBool(&c.Match.AtomicScores)},
		{"PAGE_SIZE", setInt(&c.Match.PageSize)},
		{"TIMEZONE", setString(&c.Match.Timezone)},
		{"METRICS_ENABLED", setBool(&c.Metrics.Enabled)},
	}
}

// ApplyEnv overlays SCOREBOARD_* variables found by lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, v := range c.envVars() {
		raw, ok := lookup(envPrefix + v.name)
		if !ok {
			continue
		}
		if err := v.set(strings.TrimSpace(raw)); err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, v.name, err)
		}
	}
	return nil
}

// BindFlags registers flags whose defaults are the current values of c
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Server.Host, "api-host", c.Server.Host, "API server host")
	fs.IntVar(&c.Server.Port, "api-port", c.Server.Port, "API server port")
	fs.BoolVar(&c.Server.Dev, "dev", c.Server.Dev, "Development mode (fixed secret, relaxed rate limits)")
	fs.StringVar(&c.Storage.Path, "storage-path", c.Storage.Path, "Path to SQLite database file (in-memory only if empty)")
	fs.StringVar(&c.Server.PIDFile, "pid", c.Server.PIDFile, "Optional path to write PID file")
	fs.BoolVar(&c.Server.PIDLock, "pid-lock", c.Server.PIDLock, "Lock PID file to allow only one instance (requires --pid)")
	fs.BoolVar(&c.Server.Serve, "serve", c.Server.Serve, "Serve the scoreboard widget page")
	fs.StringVar(&c.Server.WebHost, "web-host", c.Server.WebHost, "Widget server host")
	fs.IntVar(&c.Server.WebPort, "web-port", c.Server.WebPort, "Widget server port")
	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "Log level (trace, debug, info, warn, error)")
	fs.BoolVar(&c.Log.JSON, "log-json", c.Log.JSON, "Log in JSON")
	fs.BoolVar(&c.Match.AtomicScores, "atomic-scores", c.Match.AtomicScores, "Use versioned commits for score writes")
	fs.StringVar(&c.Match.Timezone, "timezone", c.Match.Timezone, "IANA zone for match dates (local zone if empty)")
	fs.BoolVar(&c.Metrics.Enabled, "metrics", c.Metrics.Enabled, "Expose Prometheus metrics")
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if c.Server.PIDLock && c.Server.PIDFile == "" {
		return fmt.Errorf("pid lock requires a pid file")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Auth.Secret != "" && len(c.Auth.Secret) < 32 {
		return fmt.Errorf("auth secret must be at least 32 characters")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive")
	}
	if c.Match.SyncInterval <= 0 || c.Match.Halftime <= 0 {
		return fmt.Errorf("match intervals must be positive")
	}
	if c.Match.PageSize <= 0 {
		return fmt.Errorf("page size must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured match timezone
func (c *Config) Location() (*time.Location, error) {
	if c.Match.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Match.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Match.Timezone, err)
	}
	return loc, nil
}

func setString(p *string) func(string) error {
	return func(v string) error { *p = v; return nil }
}

func setInt(p *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*p = n
		return nil
	}
}

func setBool(p *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*p = b
		return nil
	}
}

func setDuration(p *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*p = d
		return nil
	}
}
