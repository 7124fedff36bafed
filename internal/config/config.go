package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/srvkeeper/internal/env"
	"github.com/loykin/srvkeeper/internal/logger"
	"github.com/loykin/srvkeeper/internal/process"
	"github.com/loykin/srvkeeper/internal/supervisor"
	tlsutil "github.com/loykin/srvkeeper/internal/tls"
)

// Warm-up strategies.
const (
	WarmupFixed = "fixed"
	WarmupTCP   = "tcp"
)

// Config is the top-level TOML structure.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Warmup  WarmupConfig  `mapstructure:"warmup"`
	Address AddressConfig `mapstructure:"address"`
	Log     logger.Config `mapstructure:"log"`
	API     APIConfig     `mapstructure:"api"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	History HistoryConfig `mapstructure:"history"`
}

type ServerConfig struct {
	// ResourceDir overrides the directory derived from the running executable.
	ResourceDir string   `mapstructure:"resource_dir"`
	Runtime     string   `mapstructure:"runtime"`
	Executable  string   `mapstructure:"executable"`
	EntryPoint  string   `mapstructure:"entrypoint"`
	Args        []string `mapstructure:"args"`
	Env         []string `mapstructure:"env"`
	EnvFiles    []string `mapstructure:"env_files"`
	UseOSEnv    bool     `mapstructure:"use_os_env"`

	StopTimeout    time.Duration `mapstructure:"stop_timeout"`
	VerifyLiveness bool          `mapstructure:"verify_liveness"`
}

type WarmupConfig struct {
	Strategy string        `mapstructure:"strategy"` // fixed | tcp
	Delay    time.Duration `mapstructure:"delay"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Interval time.Duration `mapstructure:"interval"`
}

type AddressConfig struct {
	ProbeTarget string `mapstructure:"probe_target"`
}

type APIConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Listen   string         `mapstructure:"listen"`
	BasePath string         `mapstructure:"base_path"`
	TLS      tlsutil.Config `mapstructure:"tls"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	// ProcessStats adds CPU and memory gauges of the supervised server.
	ProcessStats bool `mapstructure:"process_stats"`
}

type HistoryConfig struct {
	Sinks   []string      `mapstructure:"sinks"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.runtime", supervisor.DefaultRuntime)
	v.SetDefault("server.entrypoint", supervisor.DefaultEntryPoint)
	v.SetDefault("server.use_os_env", true)
	v.SetDefault("server.stop_timeout", supervisor.DefaultStopTimeout)
	v.SetDefault("server.verify_liveness", true)

	v.SetDefault("warmup.strategy", WarmupFixed)
	v.SetDefault("warmup.delay", process.DefaultWarmup)
	v.SetDefault("warmup.timeout", 15*time.Second)
	v.SetDefault("warmup.interval", 100*time.Millisecond)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.listen", "127.0.0.1:8080")
	v.SetDefault("api.base_path", "/api")

	v.SetDefault("metrics.listen", "127.0.0.1:9090")

	v.SetDefault("history.timeout", supervisor.DefaultEventTimeout)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	// Decoding defaults into a fresh struct cannot fail.
	_ = v.Unmarshal(&c)
	return &c
}

// Load reads a TOML file. Relative paths inside it are resolved against the
// file's directory.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	c.resolvePaths(filepath.Dir(abs))
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &c, nil
}

func (c *Config) resolvePaths(base string) {
	rel := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.Server.ResourceDir = rel(c.Server.ResourceDir)
	for i, p := range c.Server.EnvFiles {
		c.Server.EnvFiles[i] = rel(p)
	}
	c.Log.Output = rel(c.Log.Output)
	c.Log.File.Dir = rel(c.Log.File.Dir)
	c.Log.File.StdoutPath = rel(c.Log.File.StdoutPath)
	c.Log.File.StderrPath = rel(c.Log.File.StderrPath)
	c.API.TLS.CertFile = rel(c.API.TLS.CertFile)
	c.API.TLS.KeyFile = rel(c.API.TLS.KeyFile)
	c.API.TLS.Dir = rel(c.API.TLS.Dir)
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Runtime) == "" {
		errs = append(errs, errors.New("server.runtime must not be empty"))
	}
	if strings.TrimSpace(c.Server.EntryPoint) == "" {
		errs = append(errs, errors.New("server.entrypoint must not be empty"))
	}
	if c.Server.StopTimeout <= 0 {
		errs = append(errs, errors.New("server.stop_timeout must be positive"))
	}
	switch c.Warmup.Strategy {
	case WarmupFixed:
		if c.Warmup.Delay < 0 {
			errs = append(errs, errors.New("warmup.delay must not be negative"))
		}
	case WarmupTCP:
		if c.Warmup.Timeout <= 0 || c.Warmup.Interval <= 0 {
			errs = append(errs, errors.New("warmup.timeout and warmup.interval must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown warmup.strategy %q (want %q or %q)", c.Warmup.Strategy, WarmupFixed, WarmupTCP))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.API.Enabled {
		if _, _, err := net.SplitHostPort(c.API.Listen); err != nil {
			errs = append(errs, fmt.Errorf("api.listen: %w", err))
		}
		if !strings.HasPrefix(c.API.BasePath, "/") {
			errs = append(errs, errors.New("api.base_path must start with /"))
		}
		if err := c.API.TLS.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			errs = append(errs, fmt.Errorf("metrics.listen: %w", err))
		}
	}
	if c.History.Timeout <= 0 {
		errs = append(errs, errors.New("history.timeout must be positive"))
	}
	return errors.Join(errs...)
}

// ChildEnv builds the supervised server's environment. Precedence: OS
// environment (when use_os_env), then env_files in order, then env.
func (c *Config) ChildEnv() ([]string, error) {
	e := env.New(c.Server.UseOSEnv)
	for _, p := range c.Server.EnvFiles {
		pairs, err := LoadEnvFile(p)
		if err != nil {
			return nil, err
		}
		e = e.With(pairs...)
	}
	return e.With(c.Server.Env...).Build(), nil
}

// WarmupStrategy builds the configured warm-up.
func (c *Config) WarmupStrategy() process.Warmup {
	if c.Warmup.Strategy == WarmupTCP {
		return process.TCPProbe{
			Addr:     net.JoinHostPort("127.0.0.1", strconv.Itoa(supervisor.DefaultPort)),
			Interval: c.Warmup.Interval,
			Timeout:  c.Warmup.Timeout,
		}
	}
	return process.FixedDelay(c.Warmup.Delay)
}

// LoadEnvFile parses a simple .env file and returns "KEY=VALUE" entries in file order.
// Blank lines and lines starting with # are ignored.
func LoadEnvFile(path string) ([]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i > 0 {
			out = append(out, strings.TrimSpace(line[:i])+"="+strings.TrimSpace(line[i+1:]))
		}
	}
	return out, nil
}
