package main

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/wagiedev/host-mcp-go/internal/config"
)

// flags holds command-line values. Only flags the user actually set
// override the loaded configuration.
type flags struct {
	configPath string
	version    bool
	stdio      bool

	host            string
	port            int
	streamAddr      string
	unsafe          bool
	requestTimeout  time.Duration
	maxMessageBytes int64
	eventBuffer     int
	lockOSThread    bool
	mcp             bool
	logLevel        string
	logFormat       string
}

func bindFlags(fs *pflag.FlagSet) *flags {
	defaults := config.Default()
	f := &flags{}

	fs.StringVarP(&f.configPath, "config", "c", "", "path to YAML config file (default: $HOSTMCP_CONFIG)")
	fs.BoolVar(&f.version, "version", false, "print version and exit")
	fs.BoolVar(&f.stdio, "stdio", false, "serve MCP on stdin/stdout instead of listening")

	fs.StringVar(&f.host, "host", defaults.Host, "HTTP listen host")
	fs.IntVarP(&f.port, "port", "p", defaults.Port, "HTTP listen port (0 disables HTTP)")
	fs.StringVar(&f.streamAddr, "stream-addr", defaults.StreamAddr, "line-delimited JSON listen address (empty disables)")
	fs.BoolVar(&f.unsafe, "unsafe", defaults.Unsafe, "allow procedures that mutate host state")
	fs.DurationVar(&f.requestTimeout, "request-timeout", defaults.RequestTimeout, "how long a caller waits for its procedure")
	fs.Int64Var(&f.maxMessageBytes, "max-message-bytes", defaults.MaxMessageBytes, "largest accepted request")
	fs.IntVar(&f.eventBuffer, "event-buffer", defaults.EventBuffer, "notifications queued per session before dropping")
	fs.BoolVar(&f.lockOSThread, "lock-os-thread", defaults.LockOSThread, "pin host calls to one OS thread")
	fs.BoolVar(&f.mcp, "mcp", defaults.MCP, "mount the MCP endpoint at /mcp")
	fs.StringVar(&f.logLevel, "log-level", defaults.LogLevel, "debug, info, warn or error")
	fs.StringVar(&f.logFormat, "log-format", defaults.LogFormat, "text or json")

	return f
}

// apply copies every flag set on the command line into cfg.
func (f *flags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	fs.Visit(func(fl *pflag.Flag) {
		switch fl.Name {
		case "host":
			cfg.Host = f.host
		case "port":
			cfg.Port = f.port
		case "stream-addr":
			cfg.StreamAddr = f.streamAddr
		case "unsafe":
			cfg.Unsafe = f.unsafe
		case "request-timeout":
			cfg.RequestTimeout = f.requestTimeout
		case "max-message-bytes":
			cfg.MaxMessageBytes = f.maxMessageBytes
		case "event-buffer":
			cfg.EventBuffer = f.eventBuffer
		case "lock-os-thread":
			cfg.LockOSThread = f.lockOSThread
		case "mcp":
			cfg.MCP = f.mcp
		case "log-level":
			cfg.LogLevel = f.logLevel
		case "log-format":
			cfg.LogFormat = f.logFormat
		}
	})
}
