package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dshills/refscope-mcp/internal/config"
	"github.com/dshills/refscope-mcp/internal/logging"
	"github.com/dshills/refscope-mcp/internal/mcp"
	"github.com/dshills/refscope-mcp/internal/storage"
	"github.com/dshills/refscope-mcp/internal/watcher"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cli.VersionPrinter = func(*cli.Context) { printVersion() }

	app := &cli.App{
		Name:    "refscope",
		Usage:   "Reference search MCP server for code repositories",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (default: ~/.refscope/config.toml)",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "Database file path (overrides config)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error (overrides config)",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			indexCommand(),
			sessionsCommand(),
			versionCommand(),
		},
		// Running the bare binary starts the stdio server so MCP clients
		// can point their command at refscope directly.
		Action: func(c *cli.Context) error {
			if c.NArg() > 0 {
				return fmt.Errorf("unknown command %q", c.Args().First())
			}
			return runServe(c)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and applies global CLI flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if db := c.String("db"); db != "" {
		cfg.Storage.DBPath = db
	}
	if level := c.String("log-level"); level != "" {
		cfg.Log.Level = level
	}
	return cfg, nil
}

// newLogger builds the stderr logger from config (stdout is reserved for
// the MCP protocol).
func newLogger(cfg *config.Config) *slog.Logger {
	logCfg := logging.DefaultConfig()
	if level, err := logging.ParseLevel(cfg.Log.Level); err == nil {
		logCfg.Level = level
	}
	if cfg.Log.Format != "" {
		logCfg.Format = cfg.Log.Format
	}
	return logging.New(logCfg)
}

// openStorage opens the sqlite store at the configured path, creating the
// database directory if needed.
func openStorage(cfg *config.Config) (storage.Storage, error) {
	dbFile, err := cfg.DatabasePath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	return storage.NewSQLiteStorage(dbFile)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the MCP server on stdio",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "Watch indexed session trees and re-index on change",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	// Anything using the stdlib logger must land on stderr too; stdout
	// carries the MCP protocol.
	log.SetOutput(os.Stderr)

	srv, err := mcp.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if c.Bool("watch") || cfg.Watch.Enabled {
		debounce := time.Duration(cfg.Watch.DebounceMS) * time.Millisecond
		w, err := watcher.New(srv.Indexer(), debounce, logger)
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		defer func() { _ = w.Close() }()

		if err := w.WatchAll(ctx, srv.Storage()); err != nil {
			logger.Warn("watch setup incomplete", "error", err)
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("watcher stopped", "error", err)
			}
		}()
	}

	// Start server in a goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ctx)
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigChan:
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version and build information",
		Action: func(*cli.Context) error {
			printVersion()
			return nil
		},
	}
}

func printVersion() {
	fmt.Printf("RefScope MCP Server\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Build Mode: %s\n", storage.BuildMode)
	fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
}
