package indexer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/refscope-mcp/internal/logging"
	"github.com/dshills/refscope-mcp/internal/refs"
	"github.com/dshills/refscope-mcp/internal/storage"
	"github.com/dshills/refscope-mcp/pkg/types"
)

// DefaultExcludes are glob patterns skipped in every walk, on top of the
// session's own exclude patterns and the repository root .gitignore.
var DefaultExcludes = []string{
	"**/target/**",
	"**/node_modules/**",
	"**/.git/**",
	"**/dist/**",
	"**/build/**",
	"**/__pycache__/**",
	"**/.venv/**",
	"**/venv/**",
}

const (
	// DefaultMaxFileSize caps file reads when the config does not.
	DefaultMaxFileSize = 10 * 1024 * 1024

	// binaryProbeBytes is how much of a file is checked for NUL bytes.
	binaryProbeBytes = 8 * 1024
)

// Indexer walks repositories and stores their text files per session.
type Indexer struct {
	storage storage.Storage
	log     *slog.Logger

	locks sync.Map // session id -> *IndexLock
}

// Config contains configuration for one index run
type Config struct {
	Workers         int   // Number of concurrent workers (default: runtime.NumCPU())
	MaxFileSize     int64 // Skip files larger than this (default: DefaultMaxFileSize)
	IncludePatterns []string
	ExcludePatterns []string // Added on top of DefaultExcludes
}

// Statistics contains statistics about one index run
type Statistics struct {
	RunID         string
	FilesIndexed  int
	FilesSkipped  int
	FilesFailed   int
	FilesDeleted  int
	TotalBytes    int64
	Duration      time.Duration
	ErrorMessages []string
}

// New creates a new Indexer instance
func New(store storage.Storage, log *slog.Logger) *Indexer {
	if log == nil {
		log = logging.Nop()
	}
	return &Indexer{
		storage: store,
		log:     log,
	}
}

// IndexRepository indexes the repository at rootPath into the named
// session. An existing session is refused unless force is set; a run
// already in flight for the session returns ErrIndexingInProgress.
func (idx *Indexer) IndexRepository(ctx context.Context, sessionID, rootPath string, config *Config, force bool) (*Statistics, error) {
	if config == nil {
		config = &Config{}
	}
	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	maxSize := config.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	absRoot, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid path %q", types.ErrInvalidParams, rootPath)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: path %s does not exist", types.ErrInvalidParams, absRoot)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: path %s is not a directory", types.ErrInvalidParams, absRoot)
	}

	lock := idx.sessionLock(sessionID)
	if !lock.TryAcquire() {
		return nil, fmt.Errorf("%w: session %s", types.ErrIndexingInProgress, sessionID)
	}
	defer lock.Release()

	startTime := time.Now()
	stats := &Statistics{
		RunID:         uuid.New().String(),
		ErrorMessages: make([]string, 0),
	}

	session, err := idx.getOrCreateSession(ctx, sessionID, absRoot, config, maxSize, force)
	if err != nil {
		return nil, err
	}

	entries, err := idx.discoverFiles(absRoot, config)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	existing, err := idx.storage.ListFileHashes(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list file hashes: %w", err)
	}

	keep, err := idx.indexFiles(ctx, sessionID, entries, existing, workers, maxSize, stats)
	if err != nil {
		return nil, fmt.Errorf("failed to index files: %w", err)
	}

	deleted, err := idx.storage.PruneFiles(ctx, sessionID, keep)
	if err != nil {
		return nil, fmt.Errorf("failed to prune stale files: %w", err)
	}
	stats.FilesDeleted = deleted

	session.FileCount = len(keep)
	session.TotalBytes = stats.TotalBytes
	session.LastRunID = stats.RunID
	if err := idx.storage.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	stats.Duration = time.Since(startTime)
	idx.log.Info("indexing complete",
		"session", sessionID,
		"run_id", stats.RunID,
		"indexed", stats.FilesIndexed,
		"skipped", stats.FilesSkipped,
		"failed", stats.FilesFailed,
		"deleted", stats.FilesDeleted,
		"duration_ms", stats.Duration.Milliseconds())
	return stats, nil
}

// ReindexSession re-indexes a session using its stored root path and
// patterns.
func (idx *Indexer) ReindexSession(ctx context.Context, sessionID string) (*Statistics, error) {
	session, err := idx.storage.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", types.ErrSessionNotFound, sessionID)
		}
		return nil, err
	}

	config := &Config{
		MaxFileSize:     session.MaxFileSize,
		IncludePatterns: session.IncludePatterns,
		ExcludePatterns: session.ExcludePatterns,
	}
	return idx.IndexRepository(ctx, sessionID, session.RootPath, config, true)
}

// sessionLock returns the lock for a session, creating it on first use.
func (idx *Indexer) sessionLock(sessionID string) *IndexLock {
	lock, _ := idx.locks.LoadOrStore(sessionID, &IndexLock{})
	return lock.(*IndexLock)
}

// getOrCreateSession retrieves an existing session or creates a new one.
// An existing session without force is an error; with force its root and
// patterns are replaced by the new run's values.
func (idx *Indexer) getOrCreateSession(ctx context.Context, sessionID, rootPath string, config *Config, maxSize int64, force bool) (*storage.Session, error) {
	session, err := idx.storage.GetSession(ctx, sessionID)
	if err == nil {
		if !force {
			return nil, fmt.Errorf("%w: %s", types.ErrSessionExists, sessionID)
		}
		session.RootPath = rootPath
		session.IncludePatterns = config.IncludePatterns
		session.ExcludePatterns = config.ExcludePatterns
		session.MaxFileSize = maxSize
		return session, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	session = &storage.Session{
		ID:              sessionID,
		RootPath:        rootPath,
		IncludePatterns: config.IncludePatterns,
		ExcludePatterns: config.ExcludePatterns,
		MaxFileSize:     maxSize,
	}
	if err := idx.storage.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// walkEntry is one candidate file found during discovery.
type walkEntry struct {
	rel  string // relative to the root, slash-separated
	abs  string
	size int64
}

// discoverFiles finds all indexable files under root. Exclude globs and
// the root .gitignore filter both directories and files; include globs,
// when present, filter files only.
func (idx *Indexer) discoverFiles(root string, config *Config) ([]walkEntry, error) {
	excludes := make([]string, 0, len(DefaultExcludes)+len(config.ExcludePatterns))
	excludes = append(excludes, DefaultExcludes...)
	excludes = append(excludes, config.ExcludePatterns...)

	// Subtrees named by **/<name>/** patterns are skipped without
	// descending; everything else is filtered per file.
	skipDirs := plainDirNames(excludes)
	matcher := loadGitignore(root)

	var entries []walkEntry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if matcher != nil && matcher.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if matchesAny(excludes, rel) {
			return nil
		}
		if matcher != nil && matcher.MatchesPath(rel) {
			return nil
		}
		if len(config.IncludePatterns) > 0 && !matchesAny(config.IncludePatterns, rel) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			// File vanished between listing and stat
			return nil
		}
		entries = append(entries, walkEntry{rel: rel, abs: path, size: info.Size()})
		return nil
	})

	return entries, err
}

// indexFiles processes the discovered files concurrently and returns the
// paths that should survive pruning.
func (idx *Indexer) indexFiles(ctx context.Context, sessionID string, entries []walkEntry, existing map[string]uint64, workers int, maxSize int64, stats *Statistics) ([]string, error) {
	var (
		indexed    int32
		skipped    int32
		failed     int32
		totalBytes int64
	)

	var mu sync.Mutex // Protects keep and stats.ErrorMessages
	keep := make([]string, 0, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, workers)

	for _, entry := range entries {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case sem <- struct{}{}:
			}
			defer func() { <-sem }()

			kept, err := idx.indexFile(gctx, sessionID, entry, existing, maxSize, &indexed, &skipped, &totalBytes)
			if err != nil {
				atomic.AddInt32(&failed, 1)
				mu.Lock()
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", entry.rel, err))
				// A previously indexed file that failed to refresh keeps
				// its old content rather than being pruned
				if _, ok := existing[entry.rel]; ok {
					keep = append(keep, entry.rel)
				}
				mu.Unlock()
				return nil
			}
			if kept {
				mu.Lock()
				keep = append(keep, entry.rel)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(keep)

	stats.FilesIndexed = int(indexed)
	stats.FilesSkipped = int(skipped)
	stats.FilesFailed = int(failed)
	stats.TotalBytes = totalBytes
	return keep, nil
}

// indexFile reads, fingerprints, and stores a single file. It reports
// whether the path should be kept for this session.
func (idx *Indexer) indexFile(ctx context.Context, sessionID string, entry walkEntry, existing map[string]uint64, maxSize int64, indexed, skipped *int32, totalBytes *int64) (bool, error) {
	if entry.size > maxSize {
		atomic.AddInt32(skipped, 1)
		return false, nil
	}

	data, err := os.ReadFile(entry.abs)
	if err != nil {
		return false, err
	}
	if isBinaryContent(data) {
		atomic.AddInt32(skipped, 1)
		return false, nil
	}

	hash := xxhash.Sum64(data)
	atomic.AddInt64(totalBytes, int64(len(data)))

	// Unchanged since the last run, skip the write
	if prev, ok := existing[entry.rel]; ok && prev == hash {
		atomic.AddInt32(skipped, 1)
		return true, nil
	}

	file := &storage.File{
		SessionID:   sessionID,
		Path:        entry.rel,
		Content:     string(data),
		LineCount:   countLines(data),
		SizeBytes:   int64(len(data)),
		ContentHash: hash,
		IsTest:      refs.IsTestFile(entry.rel),
		LangClass:   string(refs.ClassifyFile(entry.rel)),
	}
	if err := idx.storage.UpsertFile(ctx, file); err != nil {
		return false, fmt.Errorf("failed to store file: %w", err)
	}

	atomic.AddInt32(indexed, 1)
	return true, nil
}

// matchesAny reports whether rel matches any of the glob patterns.
// Invalid patterns never match.
func matchesAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, rel)
		if err != nil {
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// SkipDirNames returns the directory names whose subtrees the walker
// skips, combining DefaultExcludes with extra patterns. The watcher
// applies the same set when dropping events for ignored paths.
func SkipDirNames(extra []string) map[string]bool {
	patterns := make([]string, 0, len(DefaultExcludes)+len(extra))
	patterns = append(patterns, DefaultExcludes...)
	patterns = append(patterns, extra...)
	return plainDirNames(patterns)
}

// plainDirNames extracts bare directory names from patterns shaped like
// **/<name>/** so whole subtrees can be skipped during the walk.
func plainDirNames(patterns []string) map[string]bool {
	names := make(map[string]bool)
	for _, pattern := range patterns {
		if !strings.HasPrefix(pattern, "**/") || !strings.HasSuffix(pattern, "/**") {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(pattern, "**/"), "/**")
		if name != "" && !strings.ContainsAny(name, "*?[/") {
			names[name] = true
		}
	}
	return names
}

// loadGitignore compiles the repository root .gitignore, or returns nil
// when there is none.
func loadGitignore(root string) *ignore.GitIgnore {
	matcher, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return matcher
}

// isBinaryContent reports whether data looks binary: a NUL byte anywhere
// in the first 8 KiB.
func isBinaryContent(data []byte) bool {
	probe := data
	if len(probe) > binaryProbeBytes {
		probe = probe[:binaryProbeBytes]
	}
	return bytes.IndexByte(probe, 0) >= 0
}

// countLines counts lines the way editors do: a trailing newline does
// not start an empty final line.
func countLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}
