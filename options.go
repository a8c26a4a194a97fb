package hostmcp

import (
	"log/slog"
	"time"

	"github.com/wagiedev/host-mcp-go/internal/config"
	"github.com/wagiedev/host-mcp-go/internal/protocol"
)

// Config is the file and environment configuration consumed by WithConfig.
type Config = config.Config

// HTTPTimeouts holds net/http server timeouts.
type HTTPTimeouts = config.HTTPConfig

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfig returns the default configuration overlaid with the YAML file at
// path (skipped when empty) and HOSTMCP_* environment variables.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// Options holds server settings. Build it with Option functions.
type Options struct {
	// Logger receives all server logs. Nil means NopLogger.
	Logger *slog.Logger

	// Unsafe enables procedures classified unsafe.
	Unsafe bool

	// RequestTimeout bounds how long a caller waits for its procedure.
	RequestTimeout time.Duration

	// LockOSThread pins the owner loop to one OS thread.
	LockOSThread bool

	ServerName    string
	ServerVersion string

	// EventBuffer is the per-session notification queue depth.
	EventBuffer int

	// MaxMessageBytes caps request bodies and stream lines.
	MaxMessageBytes int64

	// DisableMCP leaves /mcp unmounted.
	DisableMCP bool

	// HTTP holds net/http server timeouts used by ListenAndServe.
	HTTP HTTPTimeouts

	// Procedures are registered by Start, before the registry is frozen.
	Procedures []*Procedure
}

// Option configures Options using the functional options pattern.
type Option func(*Options)

func applyOptions(opts []Option) *Options {
	defaults := config.Default()

	options := &Options{
		RequestTimeout:  protocol.DefaultTimeout,
		EventBuffer:     defaults.EventBuffer,
		MaxMessageBytes: defaults.MaxMessageBytes,
		HTTP:            defaults.HTTP,
	}

	for _, opt := range opts {
		opt(options)
	}

	if options.Logger == nil {
		options.Logger = NopLogger()
	}

	return options
}

// ===== Basic Configuration =====

// WithLogger sets the logger.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithUnsafe enables or disables execution of unsafe procedures.
// Unsafe execution is disabled by default.
func WithUnsafe(enabled bool) Option {
	return func(o *Options) {
		o.Unsafe = enabled
	}
}

// WithRequestTimeout sets how long a caller waits for its procedure before
// receiving SyncTimeoutError. The procedure itself is not interrupted.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.RequestTimeout = timeout
	}
}

// WithServerInfo sets the name and version reported to clients.
func WithServerInfo(name, version string) Option {
	return func(o *Options) {
		o.ServerName = name
		o.ServerVersion = version
	}
}

// ===== Host =====

// WithProcedures registers procs when the server starts. Registration errors
// are returned by Start.
func WithProcedures(procs ...*Procedure) Option {
	return func(o *Options) {
		o.Procedures = append(o.Procedures, procs...)
	}
}

// WithLockOSThread pins the owner loop to a single OS thread, for hosts
// whose API is bound to the thread that initialized it.
func WithLockOSThread(lock bool) Option {
	return func(o *Options) {
		o.LockOSThread = lock
	}
}

// ===== Transports =====

// WithEventBuffer sets how many notifications may queue per session before
// new ones are dropped.
func WithEventBuffer(size int) Option {
	return func(o *Options) {
		o.EventBuffer = size
	}
}

// WithMaxMessageBytes caps a single request body or stream line.
func WithMaxMessageBytes(size int64) Option {
	return func(o *Options) {
		o.MaxMessageBytes = size
	}
}

// WithMCP mounts or removes the Model Context Protocol endpoint at /mcp.
// It is mounted by default.
func WithMCP(enabled bool) Option {
	return func(o *Options) {
		o.DisableMCP = !enabled
	}
}

// WithHTTPTimeouts sets the net/http server timeouts used by ListenAndServe.
func WithHTTPTimeouts(timeouts HTTPTimeouts) Option {
	return func(o *Options) {
		o.HTTP = timeouts
	}
}

// WithConfig applies every server setting in cfg. Listen addresses are not
// part of Options; pass them to ListenAndServe.
func WithConfig(cfg *Config) Option {
	return func(o *Options) {
		o.Unsafe = cfg.Unsafe
		o.RequestTimeout = cfg.RequestTimeout
		o.LockOSThread = cfg.LockOSThread
		o.EventBuffer = cfg.EventBuffer
		o.MaxMessageBytes = cfg.MaxMessageBytes
		o.DisableMCP = !cfg.MCP
		o.HTTP = cfg.HTTP
	}
}
