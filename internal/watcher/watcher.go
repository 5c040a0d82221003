// Package watcher provides filesystem watching for indexed sessions.
// It triggers debounced incremental re-indexing when a watched tree
// changes on disk.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/refscope-mcp/internal/indexer"
	"github.com/dshills/refscope-mcp/internal/logging"
	"github.com/dshills/refscope-mcp/internal/storage"
)

// DefaultDebounce is the delay between the last file event and the
// re-index it triggers.
const DefaultDebounce = 500 * time.Millisecond

// maxWatchesPerSession limits directory watches to prevent file
// descriptor exhaustion on large trees.
const maxWatchesPerSession = 1000

// Reindexer re-indexes one session. *indexer.Indexer satisfies it.
type Reindexer interface {
	ReindexSession(ctx context.Context, sessionID string) (*indexer.Statistics, error)
}

// Watcher triggers incremental re-indexing when watched session trees
// change.
type Watcher struct {
	reindex  Reindexer
	log      *slog.Logger
	debounce time.Duration

	fsw   *fsnotify.Watcher
	queue chan string

	mu       sync.Mutex
	sessions map[string]*watchedSession // session id -> root + ignore rules
	timers   map[string]*time.Timer     // session id -> debounce timer
}

// watchedSession holds the per-session state needed to route and filter
// events.
type watchedSession struct {
	root string
	skip map[string]bool
}

// New creates a watcher. A non-positive debounce uses DefaultDebounce.
func New(reindex Reindexer, debounce time.Duration, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = logging.Nop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		reindex:  reindex,
		log:      log,
		debounce: debounce,
		fsw:      fsw,
		queue:    make(chan string, 16),
		sessions: make(map[string]*watchedSession),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// WatchSession starts watching a session's directory tree. Hidden and
// excluded subtrees are not descended into; unreadable directories are
// skipped.
func (w *Watcher) WatchSession(session *storage.Session) error {
	ws := &watchedSession{
		root: session.RootPath,
		skip: indexer.SkipDirNames(session.ExcludePatterns),
	}

	w.mu.Lock()
	w.sessions[session.ID] = ws
	w.mu.Unlock()

	count := 0
	err := filepath.WalkDir(session.RootPath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != session.RootPath && (ws.skip[name] || strings.HasPrefix(name, ".")) {
			return filepath.SkipDir
		}
		if count >= maxWatchesPerSession {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			return nil
		}
		count++
		return nil
	})

	w.log.Debug("watching session",
		"session", session.ID,
		"root", session.RootPath,
		"watches", count)
	return err
}

// WatchAll watches every stored session. Per-session failures are
// logged, not fatal.
func (w *Watcher) WatchAll(ctx context.Context, store storage.Storage) error {
	sessions, err := store.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	for _, session := range sessions {
		if err := w.WatchSession(session); err != nil {
			w.log.Warn("failed to watch session", "session", session.ID, "error", err)
		}
	}
	return nil
}

// Run processes filesystem events and debounced re-index requests until
// ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return nil
		case sessionID := <-w.queue:
			w.runReindex(ctx, sessionID)
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watch error", "error", err)
		}
	}
}

// Close releases the underlying filesystem watcher.
func (w *Watcher) Close() error {
	w.stopTimers()
	return w.fsw.Close()
}

// handleEvent routes one filesystem event to its session's debounce
// timer, dropping events for paths the walker would ignore.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	sessionID, ws := w.sessionForPath(event.Name)
	if sessionID == "" {
		return
	}
	if ignoredPath(ws, event.Name) {
		return
	}

	// New directories join the watch so their files produce events too
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.fsw.Add(event.Name)
		}
	}

	w.scheduleReindex(sessionID)
}

// scheduleReindex resets the session's debounce timer.
func (w *Watcher) scheduleReindex(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.timers[sessionID]; ok {
		timer.Stop()
	}
	w.timers[sessionID] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, sessionID)
		w.mu.Unlock()

		select {
		case w.queue <- sessionID:
		default:
			w.log.Warn("reindex queue full, dropping", "session", sessionID)
		}
	})
}

func (w *Watcher) runReindex(ctx context.Context, sessionID string) {
	stats, err := w.reindex.ReindexSession(ctx, sessionID)
	if err != nil {
		w.log.Error("auto reindex failed", "session", sessionID, "error", err)
		return
	}
	w.log.Info("auto reindex complete",
		"session", sessionID,
		"indexed", stats.FilesIndexed,
		"deleted", stats.FilesDeleted)
}

// sessionForPath finds the watched session whose root contains path.
func (w *Watcher) sessionForPath(path string) (string, *watchedSession) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, ws := range w.sessions {
		if isSubpath(path, ws.root) {
			return id, ws
		}
	}
	return "", nil
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, timer := range w.timers {
		timer.Stop()
		delete(w.timers, id)
	}
}

// ignoredPath reports whether any segment of the path below the session
// root is hidden or an excluded directory name.
func ignoredPath(ws *watchedSession, path string) bool {
	rel, err := filepath.Rel(ws.root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if ws.skip[seg] || strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// isSubpath reports whether child is inside parent (or is parent).
func isSubpath(child, parent string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, "../")
}
