package refs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/refscope-mcp/internal/logging"
	"github.com/dshills/refscope-mcp/internal/storage"
	"github.com/dshills/refscope-mcp/pkg/types"
)

// snapshotCacheSize bounds how many session snapshots stay resident
const snapshotCacheSize = 64

// SnapshotFile is one file in a session snapshot.
type SnapshotFile struct {
	Path   string
	Lines  []string
	Lang   LanguageClass
	IsTest bool
}

// Snapshot is an immutable view of one indexed session. Concurrent
// queries share a snapshot read-only; re-indexing produces a new one.
type Snapshot struct {
	SessionID string
	IndexedAt time.Time
	Files     []*SnapshotFile
	byPath    map[string]*SnapshotFile
}

// Excerpt returns the window of contextLines lines before and after the
// 1-based line in the named file, inclusive. It clamps silently at file
// boundaries and returns nil when the file or line is not in the
// snapshot.
func (s *Snapshot) Excerpt(path string, line, contextLines int) []string {
	file, ok := s.byPath[path]
	if !ok {
		return nil
	}
	start := line - 1 - contextLines
	if start < 0 {
		start = 0
	}
	end := line - 1 + contextLines
	if end > len(file.Lines)-1 {
		end = len(file.Lines) - 1
	}
	if start > end {
		return nil
	}
	return file.Lines[start : end+1]
}

// Engine runs reference searches against indexed sessions. It is
// stateless across calls apart from the snapshot cache; concurrent
// queries are safe.
type Engine struct {
	store storage.Storage
	log   *slog.Logger
	cache *lru.Cache[string, *Snapshot]
}

// NewEngine creates an Engine backed by the given storage.
func NewEngine(store storage.Storage, logger *slog.Logger) *Engine {
	// Create LRU cache for session snapshots
	cache, err := lru.New[string, *Snapshot](snapshotCacheSize)
	if err != nil {
		// This should never happen with valid size parameter
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	if logger == nil {
		logger = logging.Nop()
	}

	return &Engine{
		store: store,
		log:   logger,
		cache: cache,
	}
}

// FindReferences executes one query end to end: validate, snapshot,
// scan, score, filter, rank, render. No retries; scanning is
// deterministic.
func (e *Engine) FindReferences(ctx context.Context, q Query) (string, error) {
	if err := q.Validate(); err != nil {
		return "", err
	}

	start := time.Now()

	snap, err := e.snapshot(ctx, q.SessionID)
	if err != nil {
		return "", err
	}

	refs, err := Scan(ctx, snap, q)
	if err != nil {
		return "", err
	}

	for i := range refs {
		isTest := false
		if f, ok := snap.byPath[refs[i].File]; ok {
			isTest = f.IsTest
		}
		refs[i].Confidence = Score(refs[i].Classification, isTest)
	}

	kept, total := FilterAndRank(refs, q)
	report := Render(snap, q, kept, total)

	e.log.Debug("reference search completed",
		"session", q.SessionID,
		"symbol", q.Symbol,
		"total", total,
		"returned", len(kept),
		"duration_ms", time.Since(start).Milliseconds())

	return report, nil
}

// snapshot returns the cached snapshot for a session, rebuilding it when
// the session has been re-indexed since the snapshot was cached.
func (e *Engine) snapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", types.ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("%w: %v", types.ErrInternal, err)
	}

	if snap, ok := e.cache.Get(sessionID); ok && snap.IndexedAt.Equal(session.LastIndexedAt) {
		return snap, nil
	}

	files, err := e.store.ListFiles(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInternal, err)
	}

	snap := buildSnapshot(session, files)
	e.cache.Add(sessionID, snap)
	return snap, nil
}

func buildSnapshot(session *storage.Session, files []*storage.File) *Snapshot {
	snap := &Snapshot{
		SessionID: session.ID,
		IndexedAt: session.LastIndexedAt,
		Files:     make([]*SnapshotFile, 0, len(files)),
		byPath:    make(map[string]*SnapshotFile, len(files)),
	}
	for _, f := range files {
		sf := &SnapshotFile{
			Path:   f.Path,
			Lines:  splitLines(f.Content),
			Lang:   ClassifyFile(f.Path),
			IsTest: IsTestFile(f.Path),
		}
		snap.Files = append(snap.Files, sf)
		snap.byPath[sf.Path] = sf
	}
	return snap
}

// splitLines splits content into lines without a phantom entry for a
// trailing newline. CRLF endings are normalized.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
