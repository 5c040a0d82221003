package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dshills/refscope-mcp/internal/indexer"
	"github.com/dshills/refscope-mcp/internal/storage"
)

// stubReindexer records re-index calls and signals each one
type stubReindexer struct {
	mu    sync.Mutex
	calls []string
	fired chan string
}

func newStubReindexer() *stubReindexer {
	return &stubReindexer{fired: make(chan string, 16)}
}

func (s *stubReindexer) ReindexSession(_ context.Context, sessionID string) (*indexer.Statistics, error) {
	s.mu.Lock()
	s.calls = append(s.calls, sessionID)
	s.mu.Unlock()
	s.fired <- sessionID
	return &indexer.Statistics{}, nil
}

func (s *stubReindexer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// startWatcher runs w.Run in the background and returns a stop function
func startWatcher(t *testing.T, w *Watcher) func() {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	return func() {
		cancel()
		require.NoError(t, <-done)
		require.NoError(t, w.Close())
	}
}

func waitForReindex(t *testing.T, stub *stubReindexer) string {
	t.Helper()

	select {
	case id := <-stub.fired:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reindex")
		return ""
	}
}

// TestWatcher_TriggersReindexOnWrite verifies the write -> debounce ->
// reindex path
func TestWatcher_TriggersReindexOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "main.rs")
	require.NoError(t, os.WriteFile(path, []byte("fn main() {}\n"), 0644))

	stub := newStubReindexer()
	w, err := New(stub, 50*time.Millisecond, nil)
	require.NoError(t, err)
	require.NoError(t, w.WatchSession(&storage.Session{ID: "proj", RootPath: tmpDir}))

	stop := startWatcher(t, w)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte("fn main() { changed(); }\n"), 0644))

	assert.Equal(t, "proj", waitForReindex(t, stub))
}

// TestWatcher_DebounceCoalesces verifies a burst of writes yields one
// reindex
func TestWatcher_DebounceCoalesces(t *testing.T) {
	defer goleak.VerifyNone(t)

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "main.rs")
	require.NoError(t, os.WriteFile(path, []byte("v0\n"), 0644))

	stub := newStubReindexer()
	w, err := New(stub, 250*time.Millisecond, nil)
	require.NoError(t, err)
	require.NoError(t, w.WatchSession(&storage.Session{ID: "proj", RootPath: tmpDir}))

	stop := startWatcher(t, w)
	defer stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("v1\n"), 0644))
	}

	waitForReindex(t, stub)
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, 1, stub.callCount())
}

// TestWatcher_IgnoredPathsDropped verifies hidden and excluded paths do
// not trigger reindexing
func TestWatcher_IgnoredPathsDropped(t *testing.T) {
	defer goleak.VerifyNone(t)

	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "main.rs"), []byte("fn main() {}\n"), 0644))

	stub := newStubReindexer()
	w, err := New(stub, 50*time.Millisecond, nil)
	require.NoError(t, err)
	require.NoError(t, w.WatchSession(&storage.Session{ID: "proj", RootPath: tmpDir}))

	stop := startWatcher(t, w)
	defer stop()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".hidden.swp"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "node_modules"), 0755))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 0, stub.callCount())

	// A real change still gets through
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "main.rs"), []byte("fn main() { x(); }\n"), 0644))
	assert.Equal(t, "proj", waitForReindex(t, stub))
}

// TestWatcher_NewDirectoryGetsWatched verifies files in directories
// created after watch start still produce events
func TestWatcher_NewDirectoryGetsWatched(t *testing.T) {
	defer goleak.VerifyNone(t)

	tmpDir := t.TempDir()

	stub := newStubReindexer()
	w, err := New(stub, 50*time.Millisecond, nil)
	require.NoError(t, err)
	require.NoError(t, w.WatchSession(&storage.Session{ID: "proj", RootPath: tmpDir}))

	stop := startWatcher(t, w)
	defer stop()

	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "src"), 0755))
	waitForReindex(t, stub)

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "src", "lib.rs"), []byte("pub fn lib() {}\n"), 0644))
	assert.Equal(t, "proj", waitForReindex(t, stub))
}

// TestWatcher_WatchAll verifies stored sessions are picked up
func TestWatcher_WatchAll(t *testing.T) {
	defer goleak.VerifyNone(t)

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	rootA := t.TempDir()
	rootB := t.TempDir()
	require.NoError(t, store.CreateSession(ctx, &storage.Session{ID: "alpha", RootPath: rootA}))
	require.NoError(t, store.CreateSession(ctx, &storage.Session{ID: "beta", RootPath: rootB}))

	stub := newStubReindexer()
	w, err := New(stub, 50*time.Millisecond, nil)
	require.NoError(t, err)
	require.NoError(t, w.WatchAll(ctx, store))

	stop := startWatcher(t, w)
	defer stop()

	require.NoError(t, os.WriteFile(filepath.Join(rootB, "b.rs"), []byte("fn b() {}\n"), 0644))
	assert.Equal(t, "beta", waitForReindex(t, stub))
}

// TestIgnoredPath covers the event filtering rules
func TestIgnoredPath(t *testing.T) {
	ws := &watchedSession{
		root: "/repo",
		skip: indexer.SkipDirNames(nil),
	}

	tests := []struct {
		name    string
		path    string
		ignored bool
	}{
		{"root itself", "/repo", false},
		{"plain file", "/repo/src/main.rs", false},
		{"hidden file", "/repo/.env", true},
		{"hidden dir segment", "/repo/.git/HEAD", true},
		{"node_modules", "/repo/node_modules/pkg/index.js", true},
		{"target subtree", "/repo/target/debug/out", true},
		{"name containing dot", "/repo/src/main.test.rs", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ignored, ignoredPath(ws, tt.path))
		})
	}
}

// TestIsSubpath covers path containment checks
func TestIsSubpath(t *testing.T) {
	assert.True(t, isSubpath("/repo/src/main.rs", "/repo"))
	assert.True(t, isSubpath("/repo", "/repo"))
	assert.True(t, isSubpath("/repo/.git/HEAD", "/repo"))
	assert.False(t, isSubpath("/other/main.rs", "/repo"))
	assert.False(t, isSubpath("/repo-sibling/x", "/repo"))
}
