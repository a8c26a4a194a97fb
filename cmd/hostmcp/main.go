// hostmcp serves the sample host over HTTP, the line-delimited stream
// transport and, with --stdio, the Model Context Protocol on stdin/stdout.
//
// Configuration is layered: built-in defaults, then the YAML file named by
// --config or HOSTMCP_CONFIG, then HOSTMCP_* environment variables, then
// flags given on the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/pflag"

	hostmcp "github.com/wagiedev/host-mcp-go"
	"github.com/wagiedev/host-mcp-go/internal/config"
	"github.com/wagiedev/host-mcp-go/internal/sample"
)

// version is set at link time.
var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stderr io.Writer) error {
	flagSet := pflag.NewFlagSet("hostmcp", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)

	f := bindFlags(flagSet)

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}

		return err
	}

	if f.version {
		fmt.Fprintf(stderr, "hostmcp %s\n", version)

		return nil
	}

	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	path := f.configPath
	if path == "" {
		path = os.Getenv("HOSTMCP_CONFIG")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	f.apply(flagSet, cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := newLogger(cfg, stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	procedures, err := sample.Procedures(sample.NewHost("hostmcp"))
	if err != nil {
		return err
	}

	srv := hostmcp.New(
		hostmcp.WithLogger(log),
		hostmcp.WithConfig(cfg),
		hostmcp.WithServerInfo("hostmcp", version),
		hostmcp.WithProcedures(procedures...),
	)
	defer srv.Close()

	if err := srv.Start(ctx); err != nil {
		return err
	}

	if f.stdio {
		log.Info("Serving MCP on stdio")

		return srv.ServeMCP(ctx, &mcp.StdioTransport{})
	}

	httpAddr := ""
	if cfg.Port != 0 {
		httpAddr = cfg.HTTPAddr()
	}

	err = srv.ListenAndServe(ctx, httpAddr, cfg.StreamAddr)

	log.Info("Shutting down", "stats", srv.Stats())

	return err
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.LogFormat == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}

	return slog.New(slog.NewTextHandler(w, opts)), nil
}
