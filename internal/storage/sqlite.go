package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// deleteBatchSize bounds the number of bound variables per DELETE
const deleteBatchSize = 500

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// marshalPatterns serializes glob pattern lists into a TEXT column
func marshalPatterns(patterns []string) (string, error) {
	if patterns == nil {
		patterns = []string{}
	}
	data, err := json.Marshal(patterns)
	if err != nil {
		return "", fmt.Errorf("failed to encode patterns: %w", err)
	}
	return string(data), nil
}

func unmarshalPatterns(data string) ([]string, error) {
	if data == "" {
		return nil, nil
	}
	var patterns []string
	if err := json.Unmarshal([]byte(data), &patterns); err != nil {
		return nil, fmt.Errorf("failed to decode patterns: %w", err)
	}
	return patterns, nil
}

// Session operations

// createSessionWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) createSessionWithQuerier(ctx context.Context, q querier, session *Session) error {
	include, err := marshalPatterns(session.IncludePatterns)
	if err != nil {
		return err
	}
	exclude, err := marshalPatterns(session.ExcludePatterns)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sessions (id, root_path, file_count, total_bytes, last_run_id,
		                      include_patterns, exclude_patterns, max_file_size,
		                      created_at, last_indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now().UTC()
	_, err = q.ExecContext(ctx, query,
		session.ID, session.RootPath, session.FileCount, session.TotalBytes,
		session.LastRunID, include, exclude, session.MaxFileSize, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create session: %w", err)
	}

	session.CreatedAt = now
	session.LastIndexedAt = now
	return nil
}

func (s *SQLiteStorage) CreateSession(ctx context.Context, session *Session) error {
	return s.createSessionWithQuerier(ctx, s.querier(), session)
}

func scanSession(scan func(dest ...interface{}) error) (*Session, error) {
	var session Session
	var include, exclude string
	err := scan(
		&session.ID, &session.RootPath, &session.FileCount, &session.TotalBytes,
		&session.LastRunID, &include, &exclude, &session.MaxFileSize,
		&session.CreatedAt, &session.LastIndexedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if session.IncludePatterns, err = unmarshalPatterns(include); err != nil {
		return nil, err
	}
	if session.ExcludePatterns, err = unmarshalPatterns(exclude); err != nil {
		return nil, err
	}
	return &session, nil
}

const sessionColumns = `id, root_path, file_count, total_bytes, last_run_id,
	       include_patterns, exclude_patterns, max_file_size, created_at, last_indexed_at`

// getSessionWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getSessionWithQuerier(ctx context.Context, q querier, sessionID string) (*Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE id = ?
	`
	row := q.QueryRowContext(ctx, query, sessionID)
	return scanSession(row.Scan)
}

func (s *SQLiteStorage) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	return s.getSessionWithQuerier(ctx, s.querier(), sessionID)
}

// updateSessionWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) updateSessionWithQuerier(ctx context.Context, q querier, session *Session) error {
	include, err := marshalPatterns(session.IncludePatterns)
	if err != nil {
		return err
	}
	exclude, err := marshalPatterns(session.ExcludePatterns)
	if err != nil {
		return err
	}

	query := `
		UPDATE sessions
		SET root_path = ?, file_count = ?, total_bytes = ?, last_run_id = ?,
		    include_patterns = ?, exclude_patterns = ?, max_file_size = ?,
		    last_indexed_at = ?
		WHERE id = ?
	`
	now := time.Now().UTC()
	result, err := q.ExecContext(ctx, query,
		session.RootPath, session.FileCount, session.TotalBytes, session.LastRunID,
		include, exclude, session.MaxFileSize, now, session.ID)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return ErrNotFound
	}
	session.LastIndexedAt = now
	return nil
}

func (s *SQLiteStorage) UpdateSession(ctx context.Context, session *Session) error {
	return s.updateSessionWithQuerier(ctx, s.querier(), session)
}

// listSessionsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listSessionsWithQuerier(ctx context.Context, q querier) ([]*Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		ORDER BY id
	`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]*Session, 0)
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStorage) ListSessions(ctx context.Context) ([]*Session, error) {
	return s.listSessionsWithQuerier(ctx, s.querier())
}

// deleteSessionWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) deleteSessionWithQuerier(ctx context.Context, q querier, sessionID string) error {
	query := `DELETE FROM sessions WHERE id = ?`
	result, err := q.ExecContext(ctx, query, sessionID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) DeleteSession(ctx context.Context, sessionID string) error {
	return s.deleteSessionWithQuerier(ctx, s.querier(), sessionID)
}

// File operations

// upsertFileWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertFileWithQuerier(ctx context.Context, q querier, file *File) error {
	query := `
		INSERT INTO files (session_id, path, content, line_count, size_bytes,
		                   content_hash, is_test, lang_class, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, path) DO UPDATE SET
			content = excluded.content,
			line_count = excluded.line_count,
			size_bytes = excluded.size_bytes,
			content_hash = excluded.content_hash,
			is_test = excluded.is_test,
			lang_class = excluded.lang_class,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now().UTC()
	err := q.QueryRowContext(ctx, query,
		file.SessionID, file.Path, file.Content, file.LineCount, file.SizeBytes,
		int64(file.ContentHash), file.IsTest, file.LangClass, now).Scan(&file.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert file: %w", err)
	}

	file.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertFile(ctx context.Context, file *File) error {
	return s.upsertFileWithQuerier(ctx, s.querier(), file)
}

const fileColumns = `id, session_id, path, content, line_count, size_bytes,
	       content_hash, is_test, lang_class, updated_at`

func scanFile(scan func(dest ...interface{}) error) (*File, error) {
	var file File
	var hash int64
	err := scan(
		&file.ID, &file.SessionID, &file.Path, &file.Content, &file.LineCount,
		&file.SizeBytes, &hash, &file.IsTest, &file.LangClass, &file.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	file.ContentHash = uint64(hash)
	return &file, nil
}

// getFileWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getFileWithQuerier(ctx context.Context, q querier, sessionID, path string) (*File, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM files
		WHERE session_id = ? AND path = ?
	`
	row := q.QueryRowContext(ctx, query, sessionID, path)
	return scanFile(row.Scan)
}

func (s *SQLiteStorage) GetFile(ctx context.Context, sessionID, path string) (*File, error) {
	return s.getFileWithQuerier(ctx, s.querier(), sessionID, path)
}

// listFilesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listFilesWithQuerier(ctx context.Context, q querier, sessionID string) ([]*File, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM files
		WHERE session_id = ?
		ORDER BY path
	`
	rows, err := q.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	files := make([]*File, 0)
	for rows.Next() {
		file, err := scanFile(rows.Scan)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (s *SQLiteStorage) ListFiles(ctx context.Context, sessionID string) ([]*File, error) {
	return s.listFilesWithQuerier(ctx, s.querier(), sessionID)
}

// listFileHashesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listFileHashesWithQuerier(ctx context.Context, q querier, sessionID string) (map[string]uint64, error) {
	query := `SELECT path, content_hash FROM files WHERE session_id = ?`
	rows, err := q.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	hashes := make(map[string]uint64)
	for rows.Next() {
		var path string
		var hash int64
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, err
		}
		hashes[path] = uint64(hash)
	}
	return hashes, rows.Err()
}

func (s *SQLiteStorage) ListFileHashes(ctx context.Context, sessionID string) (map[string]uint64, error) {
	return s.listFileHashesWithQuerier(ctx, s.querier(), sessionID)
}

// pruneFilesWithQuerier deletes rows for paths no longer present on disk
func (s *SQLiteStorage) pruneFilesWithQuerier(ctx context.Context, q querier, sessionID string, keep []string) (int, error) {
	keepSet := make(map[string]struct{}, len(keep))
	for _, p := range keep {
		keepSet[p] = struct{}{}
	}

	rows, err := q.QueryContext(ctx, `SELECT id, path FROM files WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, err
	}
	var stale []int64
	for rows.Next() {
		var id int64
		var path string
		if err := rows.Scan(&id, &path); err != nil {
			_ = rows.Close()
			return 0, err
		}
		if _, ok := keepSet[path]; !ok {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, err
	}
	_ = rows.Close()

	deleted := 0
	for start := 0; start < len(stale); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(stale) {
			end = len(stale)
		}
		batch := stale[start:end]

		placeholders := make([]string, len(batch))
		args := make([]interface{}, len(batch))
		for i, id := range batch {
			placeholders[i] = "?"
			args[i] = id
		}

		query := `DELETE FROM files WHERE id IN (` + strings.Join(placeholders, ",") + `)`
		result, err := q.ExecContext(ctx, query, args...)
		if err != nil {
			return deleted, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return deleted, err
		}
		deleted += int(affected)
	}
	return deleted, nil
}

func (s *SQLiteStorage) PruneFiles(ctx context.Context, sessionID string, keep []string) (int, error) {
	return s.pruneFilesWithQuerier(ctx, s.querier(), sessionID, keep)
}

// Search operations

// searchTextWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) searchTextWithQuerier(ctx context.Context, q querier, sessionID, query string, limit int) ([]TextResult, error) {
	// Note: in FTS5 'rank' is a built-in column holding the BM25 score
	// (negative, lower is better). It is negated here so callers see a
	// positive score where higher is better.
	sqlQuery := `
		SELECT f.id, f.path, -bm25(files_fts) AS score,
		       snippet(files_fts, 1, '', '', '…', 16)
		FROM files f
		JOIN files_fts ON f.id = files_fts.rowid
		WHERE files_fts MATCH ? AND f.session_id = ?
		ORDER BY rank
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, sqlQuery, query, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	results := make([]TextResult, 0)
	for rows.Next() {
		var r TextResult
		if err := rows.Scan(&r.FileID, &r.Path, &r.BM25Score, &r.Snippet); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *SQLiteStorage) SearchText(ctx context.Context, sessionID, query string, limit int) ([]TextResult, error) {
	return s.searchTextWithQuerier(ctx, s.querier(), sessionID, query, limit)
}

// Status operations

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*StoreStatus, error) {
	status := &StoreStatus{}

	var sessionCount int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&sessionCount); err != nil {
		return nil, err
	}
	status.SessionCount = sessionCount

	var fileCount int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM files").Scan(&fileCount); err != nil {
		return nil, err
	}
	status.FileCount = fileCount

	var schemaVersion sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1").Scan(&schemaVersion)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if schemaVersion.Valid {
		status.SchemaVersion = schemaVersion.String
	}

	// Calculate database size
	var pageCount, pageSize int
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.DBSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible: true,
		FTSIndexesBuilt:    true, // FTS indexes are created with migrations
	}

	return status, nil
}

// Transaction implementations

// Write operations use the internal helper that takes a querier; reads that
// only ever run outside a write path delegate to the main storage.

func (t *sqliteTx) CreateSession(ctx context.Context, session *Session) error {
	return t.storage.createSessionWithQuerier(ctx, t.querier(), session)
}

func (t *sqliteTx) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	return t.storage.getSessionWithQuerier(ctx, t.querier(), sessionID)
}

func (t *sqliteTx) UpdateSession(ctx context.Context, session *Session) error {
	return t.storage.updateSessionWithQuerier(ctx, t.querier(), session)
}

func (t *sqliteTx) ListSessions(ctx context.Context) ([]*Session, error) {
	return t.storage.listSessionsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) DeleteSession(ctx context.Context, sessionID string) error {
	return t.storage.deleteSessionWithQuerier(ctx, t.querier(), sessionID)
}

func (t *sqliteTx) UpsertFile(ctx context.Context, file *File) error {
	return t.storage.upsertFileWithQuerier(ctx, t.querier(), file)
}

func (t *sqliteTx) GetFile(ctx context.Context, sessionID, path string) (*File, error) {
	return t.storage.getFileWithQuerier(ctx, t.querier(), sessionID, path)
}

func (t *sqliteTx) ListFiles(ctx context.Context, sessionID string) ([]*File, error) {
	return t.storage.listFilesWithQuerier(ctx, t.querier(), sessionID)
}

func (t *sqliteTx) ListFileHashes(ctx context.Context, sessionID string) (map[string]uint64, error) {
	return t.storage.listFileHashesWithQuerier(ctx, t.querier(), sessionID)
}

func (t *sqliteTx) PruneFiles(ctx context.Context, sessionID string, keep []string) (int, error) {
	return t.storage.pruneFilesWithQuerier(ctx, t.querier(), sessionID, keep)
}

func (t *sqliteTx) SearchText(ctx context.Context, sessionID, query string, limit int) ([]TextResult, error) {
	return t.storage.searchTextWithQuerier(ctx, t.querier(), sessionID, query, limit)
}

func (t *sqliteTx) GetStatus(ctx context.Context) (*StoreStatus, error) {
	return t.storage.GetStatus(ctx)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
