package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	return storage
}

func testSession(id string) *Session {
	return &Session{
		ID:              id,
		RootPath:        "/test/path",
		IncludePatterns: []string{"**/*.go"},
		ExcludePatterns: []string{"vendor/**"},
		MaxFileSize:     1024 * 1024,
	}
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	assert.NotNil(t, storage)
	assert.NotNil(t, storage.db)
}

func TestClose(t *testing.T) {
	storage := setupTestDB(t)
	err := storage.Close()
	assert.NoError(t, err)
}

func TestCreateSession(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	session := testSession("my-project")

	err := storage.CreateSession(ctx, session)
	require.NoError(t, err)
	assert.False(t, session.CreatedAt.IsZero())

	// Try to create duplicate - should fail
	duplicate := testSession("my-project")
	err = storage.CreateSession(ctx, duplicate)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestGetSession(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	session := testSession("my-project")

	err := storage.CreateSession(ctx, session)
	require.NoError(t, err)

	// Get the session
	retrieved, err := storage.GetSession(ctx, "my-project")
	require.NoError(t, err)
	assert.Equal(t, session.ID, retrieved.ID)
	assert.Equal(t, session.RootPath, retrieved.RootPath)
	assert.Equal(t, []string{"**/*.go"}, retrieved.IncludePatterns)
	assert.Equal(t, []string{"vendor/**"}, retrieved.ExcludePatterns)
	assert.Equal(t, int64(1024*1024), retrieved.MaxFileSize)
}

func TestGetSession_NotFound(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	_, err := storage.GetSession(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateSession(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	session := testSession("my-project")

	err := storage.CreateSession(ctx, session)
	require.NoError(t, err)

	// Update the session
	session.FileCount = 42
	session.TotalBytes = 123456
	session.LastRunID = "run-1"

	err = storage.UpdateSession(ctx, session)
	require.NoError(t, err)

	// Verify update
	updated, err := storage.GetSession(ctx, "my-project")
	require.NoError(t, err)
	assert.Equal(t, int64(42), updated.FileCount)
	assert.Equal(t, int64(123456), updated.TotalBytes)
	assert.Equal(t, "run-1", updated.LastRunID)
	assert.False(t, updated.LastIndexedAt.IsZero())
}

func TestUpdateSession_NotFound(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	err := storage.UpdateSession(ctx, testSession("nonexistent"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListSessions(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()

	sessions, err := storage.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	require.NoError(t, storage.CreateSession(ctx, testSession("beta")))
	require.NoError(t, storage.CreateSession(ctx, testSession("alpha")))

	sessions, err = storage.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	// Ordered by ID
	assert.Equal(t, "alpha", sessions[0].ID)
	assert.Equal(t, "beta", sessions[1].ID)
}

func TestDeleteSession(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	session := testSession("my-project")
	require.NoError(t, storage.CreateSession(ctx, session))

	file := &File{
		SessionID:   "my-project",
		Path:        "main.go",
		Content:     "package main",
		LineCount:   1,
		SizeBytes:   12,
		ContentHash: 42,
		LangClass:   "go",
	}
	require.NoError(t, storage.UpsertFile(ctx, file))

	err := storage.DeleteSession(ctx, "my-project")
	require.NoError(t, err)

	_, err = storage.GetSession(ctx, "my-project")
	assert.ErrorIs(t, err, ErrNotFound)

	// Files should cascade
	files, err := storage.ListFiles(ctx, "my-project")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDeleteSession_NotFound(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	err := storage.DeleteSession(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertFile(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	require.NoError(t, storage.CreateSession(ctx, testSession("s1")))

	file := &File{
		SessionID:   "s1",
		Path:        "main.go",
		Content:     "package main\n",
		LineCount:   1,
		SizeBytes:   13,
		ContentHash: 12345,
		LangClass:   "go",
	}

	// Create file
	err := storage.UpsertFile(ctx, file)
	require.NoError(t, err)
	assert.Greater(t, file.ID, int64(0))

	originalID := file.ID

	// Update same file
	file.Content = "package main\n\nfunc main() {}\n"
	file.LineCount = 3
	file.ContentHash = 67890
	err = storage.UpsertFile(ctx, file)
	require.NoError(t, err)
	assert.Equal(t, originalID, file.ID) // ID should remain the same

	retrieved, err := storage.GetFile(ctx, "s1", "main.go")
	require.NoError(t, err)
	assert.Equal(t, 3, retrieved.LineCount)
	assert.Equal(t, uint64(67890), retrieved.ContentHash)
}

func TestGetFile_NotFound(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	require.NoError(t, storage.CreateSession(ctx, testSession("s1")))

	_, err := storage.GetFile(ctx, "s1", "missing.go")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListFiles(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	require.NoError(t, storage.CreateSession(ctx, testSession("s1")))

	for _, path := range []string{"src/b.go", "src/a.go", "README.md"} {
		file := &File{
			SessionID:   "s1",
			Path:        path,
			Content:     "content of " + path,
			ContentHash: 1,
		}
		require.NoError(t, storage.UpsertFile(ctx, file))
	}

	files, err := storage.ListFiles(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, files, 3)
	// Ordered by path
	assert.Equal(t, "README.md", files[0].Path)
	assert.Equal(t, "src/a.go", files[1].Path)
	assert.Equal(t, "src/b.go", files[2].Path)
}

func TestListFileHashes(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	require.NoError(t, storage.CreateSession(ctx, testSession("s1")))

	require.NoError(t, storage.UpsertFile(ctx, &File{
		SessionID: "s1", Path: "a.go", Content: "a", ContentHash: 111,
	}))
	require.NoError(t, storage.UpsertFile(ctx, &File{
		SessionID: "s1", Path: "b.go", Content: "b", ContentHash: 222,
	}))

	hashes, err := storage.ListFileHashes(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, map[string]uint64{"a.go": 111, "b.go": 222}, hashes)
}

func TestListFileHashes_LargeHash(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	require.NoError(t, storage.CreateSession(ctx, testSession("s1")))

	// Hash with the high bit set must round-trip through the INTEGER column
	const hash = uint64(0xDEADBEEFDEADBEEF)
	require.NoError(t, storage.UpsertFile(ctx, &File{
		SessionID: "s1", Path: "a.go", Content: "a", ContentHash: hash,
	}))

	hashes, err := storage.ListFileHashes(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, hash, hashes["a.go"])
}

func TestPruneFiles(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	require.NoError(t, storage.CreateSession(ctx, testSession("s1")))

	for _, path := range []string{"a.go", "b.go", "c.go"} {
		require.NoError(t, storage.UpsertFile(ctx, &File{
			SessionID: "s1", Path: path, Content: path, ContentHash: 1,
		}))
	}

	deleted, err := storage.PruneFiles(ctx, "s1", []string{"a.go", "c.go"})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	files, err := storage.ListFiles(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.go", files[0].Path)
	assert.Equal(t, "c.go", files[1].Path)
}

func TestPruneFiles_KeepAll(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	require.NoError(t, storage.CreateSession(ctx, testSession("s1")))
	require.NoError(t, storage.UpsertFile(ctx, &File{
		SessionID: "s1", Path: "a.go", Content: "a", ContentHash: 1,
	}))

	deleted, err := storage.PruneFiles(ctx, "s1", []string{"a.go"})
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestPruneFiles_ManyStale(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	require.NoError(t, storage.CreateSession(ctx, testSession("s1")))

	// More stale rows than one delete batch
	total := deleteBatchSize + 50
	for i := 0; i < total; i++ {
		require.NoError(t, storage.UpsertFile(ctx, &File{
			SessionID: "s1", Path: fmt.Sprintf("gen/%04d.go", i), Content: "x", ContentHash: 1,
		}))
	}

	deleted, err := storage.PruneFiles(ctx, "s1", nil)
	require.NoError(t, err)
	assert.Equal(t, total, deleted)

	files, err := storage.ListFiles(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestSearchText(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	require.NoError(t, storage.CreateSession(ctx, testSession("s1")))
	require.NoError(t, storage.CreateSession(ctx, testSession("s2")))

	require.NoError(t, storage.UpsertFile(ctx, &File{
		SessionID: "s1", Path: "auth.go",
		Content:     "func Authenticate(user string) error { return checkPassword(user) }",
		ContentHash: 1,
	}))
	require.NoError(t, storage.UpsertFile(ctx, &File{
		SessionID: "s1", Path: "main.go",
		Content:     "func main() { fmt.Println(\"hello\") }",
		ContentHash: 2,
	}))
	require.NoError(t, storage.UpsertFile(ctx, &File{
		SessionID: "s2", Path: "other.go",
		Content:     "// Authenticate lives elsewhere",
		ContentHash: 3,
	}))

	results, err := storage.SearchText(ctx, "s1", "Authenticate", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "auth.go", results[0].Path)
	assert.Greater(t, results[0].BM25Score, 0.0)
	assert.NotEmpty(t, results[0].Snippet)
}

func TestSearchText_UpdatedContent(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	require.NoError(t, storage.CreateSession(ctx, testSession("s1")))

	file := &File{SessionID: "s1", Path: "a.go", Content: "widget factory", ContentHash: 1}
	require.NoError(t, storage.UpsertFile(ctx, file))

	// The FTS index must follow the update, not keep the old tokens
	file.Content = "gadget assembly"
	file.ContentHash = 2
	require.NoError(t, storage.UpsertFile(ctx, file))

	results, err := storage.SearchText(ctx, "s1", "widget", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = storage.SearchText(ctx, "s1", "gadget", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a.go", results[0].Path)
}

func TestSearchText_Limit(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	require.NoError(t, storage.CreateSession(ctx, testSession("s1")))

	for i := 0; i < 5; i++ {
		require.NoError(t, storage.UpsertFile(ctx, &File{
			SessionID: "s1", Path: fmt.Sprintf("f%d.go", i),
			Content: "shared keyword here", ContentHash: uint64(i),
		}))
	}

	results, err := storage.SearchText(ctx, "s1", "keyword", 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestGetStatus(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	require.NoError(t, storage.CreateSession(ctx, testSession("s1")))
	require.NoError(t, storage.UpsertFile(ctx, &File{
		SessionID: "s1", Path: "a.go", Content: "a", ContentHash: 1,
	}))

	status, err := storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.SessionCount)
	assert.Equal(t, 1, status.FileCount)
	assert.Equal(t, CurrentSchemaVersion, status.SchemaVersion)
	assert.True(t, status.Health.DatabaseAccessible)
	assert.True(t, status.Health.FTSIndexesBuilt)
	assert.Greater(t, status.DBSizeMB, 0.0)
}

func TestTransaction_Commit(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()

	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.CreateSession(ctx, testSession("s1")))
	require.NoError(t, tx.UpsertFile(ctx, &File{
		SessionID: "s1", Path: "a.go", Content: "a", ContentHash: 1,
	}))
	require.NoError(t, tx.Commit())

	session, err := storage.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", session.ID)
}

func TestTransaction_Rollback(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()

	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.CreateSession(ctx, testSession("s1")))
	require.NoError(t, tx.Rollback())

	_, err = storage.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransaction_Nested(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()

	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	_, err = tx.BeginTx(ctx)
	assert.Error(t, err)
}

func TestTransaction_CloseIsNoop(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()

	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)
	assert.NoError(t, tx.Close())
	require.NoError(t, tx.Rollback())

	// Underlying connection must still work
	_, err = storage.ListSessions(ctx)
	assert.NoError(t, err)
}
