package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dshills/refscope-mcp/internal/indexer"
)

func indexCommand() *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "Index a repository into a named session",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "path",
				Aliases:  []string{"p"},
				Usage:    "Repository root directory",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "session",
				Aliases:  []string{"s"},
				Usage:    "Session identifier",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "Index only files matching glob pattern (repeatable, e.g. --include 'src/**/*.rs')",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Skip files matching glob pattern (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Replace the session if it already exists",
				Value: true,
			},
		},
		Action: runIndex,
	}
}

func runIndex(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	root, err := filepath.Abs(c.String("path"))
	if err != nil {
		return fmt.Errorf("failed to resolve path %q: %w", c.String("path"), err)
	}

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	idxCfg := &indexer.Config{
		Workers:         cfg.Indexing.Workers,
		IncludePatterns: c.StringSlice("include"),
		ExcludePatterns: append(append([]string{}, cfg.Indexing.Exclude...), c.StringSlice("exclude")...),
	}
	if cfg.Indexing.MaxFileSizeMB > 0 {
		idxCfg.MaxFileSize = int64(cfg.Indexing.MaxFileSizeMB) * 1024 * 1024
	}

	idx := indexer.New(store, logger)
	stats, err := idx.IndexRepository(context.Background(), c.String("session"), root, idxCfg, c.Bool("force"))
	if err != nil {
		return err
	}

	fmt.Printf("Indexed session %q\n", c.String("session"))
	fmt.Printf("  Root:          %s\n", root)
	fmt.Printf("  Files indexed: %d\n", stats.FilesIndexed)
	fmt.Printf("  Files skipped: %d\n", stats.FilesSkipped)
	if stats.FilesFailed > 0 {
		fmt.Printf("  Files failed:  %d\n", stats.FilesFailed)
	}
	fmt.Printf("  Duration:      %s\n", stats.Duration.Round(time.Millisecond))
	for _, msg := range stats.ErrorMessages {
		fmt.Printf("  warning: %s\n", msg)
	}
	return nil
}
