// Package storage provides SQLite-based persistence for indexed sessions.
//
// The storage layer manages:
//   - Session metadata (root path, glob patterns, index statistics)
//   - File contents and xxHash64 content hashes
//   - Full-text search indexes over file contents
//
// # Database Schema
//
// Tables:
//   - sessions: Session metadata keyed by session ID
//   - files: Indexed file contents, one row per (session, path)
//   - files_fts: FTS5 full-text search index over path and content
//   - schema_version: Applied migration versions
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.refscope/refscope.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	// Store a file
//	err = db.UpsertFile(ctx, &storage.File{
//	    SessionID:   "my-project",
//	    Path:        "src/handlers.go",
//	    Content:     string(content),
//	    ContentHash: xxhash.Sum64(content),
//	})
//
// # Transactions
//
// Use transactions for atomic operations:
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	// Multiple operations in transaction
//	_ = tx.UpsertFile(ctx, file)
//	_, _ = tx.PruneFiles(ctx, sessionID, keepPaths)
//	_ = tx.UpdateSession(ctx, session)
//
//	if err := tx.Commit(); err != nil {
//	    return err
//	}
//
// # Incremental Updates
//
// Check file hashes to detect changes:
//
//	hashes, _ := db.ListFileHashes(ctx, sessionID)
//	currentHash := xxhash.Sum64(content)
//
//	if stored, ok := hashes[path]; ok && stored == currentHash {
//	    // File unchanged, skip re-indexing
//	    return nil
//	}
//
//	// File changed or new, upsert it
//	db.UpsertFile(ctx, file)
//
// # Full-Text Search
//
// Query using BM25 ranking:
//
//	results, err := db.SearchText(ctx, sessionID, "authentication", 10)
//	for _, result := range results {
//	    fmt.Printf("%s: score %.2f\n", result.Path, result.BM25Score)
//	}
//
// FTS5 indexes are automatically updated by triggers when file rows change.
//
// # Build Tags
//
// The storage package supports two build configurations:
//
// CGO Build (cgo_sqlite tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Native C FTS5 implementation
//
//   - Requires C compiler
//
//     CGO_ENABLED=1 go build -tags "cgo_sqlite,fts5"
//
// Pure Go Build (default):
//
//   - Uses modernc.org/sqlite driver
//
//   - FTS5 built in, no C compiler needed
//
//     CGO_ENABLED=0 go build
//
// # Error Handling
//
// Lookups for missing rows return ErrNotFound; creating a session whose ID
// already exists returns ErrAlreadyExists. Callers translate these into
// domain errors at the tool boundary.
package storage
