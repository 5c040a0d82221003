package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

func sessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Manage indexed sessions",
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List indexed sessions",
				Action:  runSessionsList,
			},
			{
				Name:      "info",
				Usage:     "Show details for one session",
				ArgsUsage: "<session>",
				Action:    runSessionsInfo,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete a session and its indexed data",
				ArgsUsage: "<session>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Confirm the deletion",
					},
				},
				Action: runSessionsDelete,
			},
		},
	}
}

func runSessionsList(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	sessions, err := store.ListSessions(context.Background())
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions indexed.")
		return nil
	}

	for _, s := range sessions {
		fmt.Printf("%-24s %6d files  %10s  %s\n",
			s.ID, s.FileCount, formatSize(s.TotalBytes), s.RootPath)
	}
	return nil
}

func runSessionsInfo(c *cli.Context) error {
	if c.NArg() < 1 {
		return errors.New("usage: refscope sessions info <session>")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	session, err := store.GetSession(context.Background(), c.Args().First())
	if err != nil {
		return err
	}

	fmt.Printf("Session:      %s\n", session.ID)
	fmt.Printf("Root path:    %s\n", session.RootPath)
	fmt.Printf("Files:        %d\n", session.FileCount)
	fmt.Printf("Size:         %s\n", formatSize(session.TotalBytes))
	fmt.Printf("Created:      %s\n", session.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Last indexed: %s\n", session.LastIndexedAt.Format(time.RFC3339))
	if session.LastRunID != "" {
		fmt.Printf("Last run:     %s\n", session.LastRunID)
	}
	if len(session.IncludePatterns) > 0 {
		fmt.Printf("Include:      %s\n", strings.Join(session.IncludePatterns, ", "))
	}
	if len(session.ExcludePatterns) > 0 {
		fmt.Printf("Exclude:      %s\n", strings.Join(session.ExcludePatterns, ", "))
	}
	return nil
}

func runSessionsDelete(c *cli.Context) error {
	if c.NArg() < 1 {
		return errors.New("usage: refscope sessions delete <session> --yes")
	}
	id := c.Args().First()
	if !c.Bool("yes") {
		return fmt.Errorf("refusing to delete session %q without --yes", id)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	session, err := store.GetSession(context.Background(), id)
	if err != nil {
		return err
	}
	if err := store.DeleteSession(context.Background(), id); err != nil {
		return err
	}

	fmt.Printf("Deleted session %q (%d files, %s)\n",
		id, session.FileCount, formatSize(session.TotalBytes))
	return nil
}

// formatSize renders a byte count in a human unit for table output.
func formatSize(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
