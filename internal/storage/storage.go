package storage

import (
	"context"
	"time"
)

// Storage defines the interface for persisting and querying indexed sessions
type Storage interface {
	// Session operations
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	UpdateSession(ctx context.Context, session *Session) error
	ListSessions(ctx context.Context) ([]*Session, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// File operations
	UpsertFile(ctx context.Context, file *File) error
	GetFile(ctx context.Context, sessionID, path string) (*File, error)
	ListFiles(ctx context.Context, sessionID string) ([]*File, error)
	ListFileHashes(ctx context.Context, sessionID string) (map[string]uint64, error)
	PruneFiles(ctx context.Context, sessionID string, keep []string) (deletedCount int, err error)

	// Search operations
	SearchText(ctx context.Context, sessionID, query string, limit int) ([]TextResult, error)

	// Status operations
	GetStatus(ctx context.Context) (*StoreStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Session represents one indexed snapshot of a repository
type Session struct {
	ID              string
	RootPath        string
	FileCount       int
	TotalBytes      int64
	LastRunID       string // uuid of the most recent index run
	IncludePatterns []string
	ExcludePatterns []string
	MaxFileSize     int64
	CreatedAt       time.Time
	LastIndexedAt   time.Time
}

// File represents one indexed source file within a session
type File struct {
	ID          int64
	SessionID   string
	Path        string // Relative to session root, slash-separated
	Content     string
	LineCount   int
	SizeBytes   int64
	ContentHash uint64 // xxhash64 of content
	IsTest      bool
	LangClass   string
	UpdatedAt   time.Time
}

// TextResult represents a result from full-text search
type TextResult struct {
	FileID    int64
	Path      string
	BM25Score float64
	Snippet   string
}

// StoreStatus contains statistics about the store
type StoreStatus struct {
	SessionCount  int
	FileCount     int
	DBSizeMB      float64
	SchemaVersion string
	Health        HealthStatus
}

// HealthStatus represents the health of the store
type HealthStatus struct {
	DatabaseAccessible bool
	FTSIndexesBuilt    bool
}
