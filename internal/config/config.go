// Package config loads host-mcp server configuration.
//
// Values are layered: Default, then an optional YAML file, then HOSTMCP_*
// environment variables. Command-line flags are applied last by the binary.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HOSTMCP_"

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config is the complete server configuration.
type Config struct {
	// Host is the HTTP listen host.
	Host string `yaml:"host"`

	// Port is the HTTP listen port. Zero disables the HTTP transport.
	Port int `yaml:"port"`

	// StreamAddr is the TCP address of the line-delimited stream transport.
	// Empty disables it.
	StreamAddr string `yaml:"stream_addr"`

	// Unsafe enables procedures classified unsafe.
	Unsafe bool `yaml:"unsafe"`

	// RequestTimeout bounds how long a caller waits for a procedure.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxMessageBytes caps a request body or stream line.
	MaxMessageBytes int64 `yaml:"max_message_bytes"`

	// EventBuffer is the per-session notification queue depth.
	EventBuffer int `yaml:"event_buffer"`

	// LockOSThread pins the bridge owner loop to its OS thread.
	LockOSThread bool `yaml:"lock_os_thread"`

	// MCP mounts the Model Context Protocol adapter at /mcp.
	MCP bool `yaml:"mcp"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	HTTP HTTPConfig `yaml:"http"`
}

// HTTPConfig holds net/http server timeouts.
type HTTPConfig struct {
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`

	// WriteTimeout applies to the whole response. The event stream is
	// long-lived, so zero (no limit) is the default.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Host:            "127.0.0.1",
		Port:            8765,
		Unsafe:          false,
		RequestTimeout:  30 * time.Second,
		MaxMessageBytes: 4 << 20,
		EventBuffer:     64,
		MCP:             true,
		LogLevel:        "info",
		LogFormat:       LogFormatText,
		HTTP: HTTPConfig{
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
	}
}

// Load returns Default overlaid with the file at path (when non-empty) and
// then with environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile returns Default overlaid with the YAML file at path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}

	return nil
}

// ApplyEnv overlays HOSTMCP_* variables found by lookup. Unset variables
// leave the current value alone.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	boolean := func(name string, dst *bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return
		}

		parsed, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))

			return
		}

		*dst = parsed
	}

	integer := func(name string, dst *int64) {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return
		}

		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))

			return
		}

		*dst = parsed
	}

	duration := func(name string, dst *time.Duration) {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return
		}

		parsed, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))

			return
		}

		*dst = parsed
	}

	port := int64(c.Port)
	eventBuffer := int64(c.EventBuffer)

	str("HOST", &c.Host)
	integer("PORT", &port)
	str("STREAM_ADDR", &c.StreamAddr)
	boolean("UNSAFE", &c.Unsafe)
	duration("REQUEST_TIMEOUT", &c.RequestTimeout)
	integer("MAX_MESSAGE_BYTES", &c.MaxMessageBytes)
	integer("EVENT_BUFFER", &eventBuffer)
	boolean("LOCK_OS_THREAD", &c.LockOSThread)
	boolean("MCP", &c.MCP)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	duration("HTTP_SHUTDOWN_TIMEOUT", &c.HTTP.ShutdownTimeout)

	c.Port = int(port)
	c.EventBuffer = int(eventBuffer)

	return errors.Join(errs...)
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}

	if c.Port == 0 && c.StreamAddr == "" {
		errs = append(errs, errors.New("no transport enabled: set port or stream_addr"))
	}

	if c.StreamAddr != "" {
		if _, _, err := net.SplitHostPort(c.StreamAddr); err != nil {
			errs = append(errs, fmt.Errorf("stream_addr: %w", err))
		}
	}

	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout))
	}

	if c.MaxMessageBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_message_bytes must be positive, got %d", c.MaxMessageBytes))
	}

	if c.EventBuffer <= 0 {
		errs = append(errs, fmt.Errorf("event_buffer must be positive, got %d", c.EventBuffer))
	}

	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}

	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		errs = append(errs, fmt.Errorf("log_format must be %q or %q, got %q", LogFormatText, LogFormatJSON, c.LogFormat))
	}

	return errors.Join(errs...)
}

// HTTPAddr is the HTTP listen address.
func (c *Config) HTTPAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level

	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}

	return level, nil
}
