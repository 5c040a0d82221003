// Package indexer walks repositories and stores their text files into
// per-session indexes.
//
// The indexer discovers files under a root directory, filters them with
// glob patterns and the repository .gitignore, fingerprints content for
// incremental updates, and persists file text to storage where the
// reference engine and full-text search read it.
//
// # Basic Usage
//
//	idx := indexer.New(store, logger)
//
//	stats, err := idx.IndexRepository(ctx, "myproject", "/path/to/repo", &indexer.Config{
//	    ExcludePatterns: []string{"**/generated/**"},
//	}, true)
//
//	fmt.Printf("Indexed %d files in %v\n", stats.FilesIndexed, stats.Duration)
//
// # Discovery
//
// Files are discovered with filepath.WalkDir. A path is indexed when it
// survives, in order:
//
//  1. Directory skips: hidden directories and subtrees named by
//     **/<name>/** exclude patterns (target, node_modules, .git, dist,
//     build, __pycache__, .venv, venv by default)
//  2. Hidden files
//  3. Exclude globs (doublestar syntax, slash-separated relative paths)
//  4. The repository root .gitignore
//  5. Include globs, when the session configures any
//  6. Size cap (Config.MaxFileSize, 10 MiB default)
//  7. Binary check: a NUL byte in the first 8 KiB skips the file
//
// # Incremental Indexing
//
// Content fingerprints (xxhash64) from the previous run short-circuit
// unchanged files:
//
//	// First run: processes all files
//	stats1, _ := idx.IndexRepository(ctx, "s", root, nil, true)
//	// Files: 247 indexed, 0 skipped
//
//	// Second run: only changed files are written
//	stats2, _ := idx.IndexRepository(ctx, "s", root, nil, true)
//	// Files: 3 indexed, 244 skipped
//
// Files that disappeared from the tree are pruned from storage after the
// walk; their count is reported as Statistics.FilesDeleted.
//
// # Sessions and Locking
//
// Each run targets one session. Indexing an existing session requires
// force; a run already in flight for the same session fails immediately
// with types.ErrIndexingInProgress (per-session IndexLock, atomic CAS).
// ReindexSession replays the stored root path and patterns:
//
//	stats, err := idx.ReindexSession(ctx, "myproject")
//
// # Error Handling
//
// Per-file failures are non-fatal: the file is counted in
// Statistics.FilesFailed and listed in Statistics.ErrorMessages, and the
// run continues. An error return means the run itself could not proceed
// (bad root path, storage failure, canceled context).
package indexer
