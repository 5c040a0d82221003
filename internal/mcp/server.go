package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/refscope-mcp/internal/config"
	"github.com/dshills/refscope-mcp/internal/indexer"
	"github.com/dshills/refscope-mcp/internal/logging"
	"github.com/dshills/refscope-mcp/internal/refs"
	"github.com/dshills/refscope-mcp/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "refscope-mcp"
	// ServerVersion is the current server version
	ServerVersion = "0.3.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	storage storage.Storage
	indexer *indexer.Indexer
	engine  *refs.Engine
	config  *config.Config
	log     *slog.Logger
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logging.Nop()
	}

	dbFile, err := cfg.DatabasePath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}

	// Create the database directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Initialize storage
	store, err := storage.NewSQLiteStorage(dbFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Create indexer and reference engine over the shared store
	idx := indexer.New(store, logger)
	engine := refs.NewEngine(store, logger)

	// Create MCP server
	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	s := &Server{
		mcp:     mcpServer,
		storage: store,
		indexer: idx,
		engine:  engine,
		config:  cfg,
		log:     logger,
	}

	// Register tools
	if err := s.registerTools(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.storage.Close() }()
	s.log.Info("mcp server starting", "name", ServerName, "version", ServerVersion)
	return server.ServeStdio(s.mcp)
}

// Close releases the underlying storage handle
func (s *Server) Close() error {
	return s.storage.Close()
}

// Storage returns the session store shared by the server's tools
func (s *Server) Storage() storage.Storage {
	return s.storage
}

// Indexer returns the indexer shared by the server's tools
func (s *Server) Indexer() *indexer.Indexer {
	return s.indexer
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	// Register find_references, the core tool
	s.mcp.AddTool(findReferencesTool(), s.handleFindReferences)

	// Register session lifecycle tools
	s.mcp.AddTool(indexRepositoryTool(), s.handleIndexRepository)
	s.mcp.AddTool(reindexSessionTool(), s.handleReindexSession)
	s.mcp.AddTool(listSessionsTool(), s.handleListSessions)
	s.mcp.AddTool(getSessionInfoTool(), s.handleGetSessionInfo)
	s.mcp.AddTool(deleteSessionTool(), s.handleDeleteSession)

	// Register search and diagnostics tools
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(getServerInfoTool(), s.handleGetServerInfo)
	s.mcp.AddTool(showConfigTool(), s.handleShowConfig)

	return nil
}
