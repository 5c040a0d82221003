package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/refscope-mcp/internal/indexer"
	"github.com/dshills/refscope-mcp/internal/refs"
	"github.com/dshills/refscope-mcp/internal/storage"
	"github.com/dshills/refscope-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeSessionNotFound    = -32001 // Session has not been indexed
	ErrorCodeSessionExists      = -32002 // Session already exists and force is false
	ErrorCodeIndexingInProgress = -32003 // Another index run holds the session lock
)

// maxSearchQueryLen caps the search_code query parameter
const maxSearchQueryLen = 500

// maxSessionIDLen caps session identifiers
const maxSessionIDLen = 64

// handleFindReferences handles the find_references tool invocation
func (s *Server) handleFindReferences(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, err := refs.ParseQuery(args)
	if err != nil {
		return nil, toolError(err)
	}

	s.log.Debug("find_references requested", "session", query.SessionID, "symbol", query.Symbol)

	report, err := s.engine.FindReferences(ctx, query)
	if err != nil {
		s.log.Error("find_references failed", "session", query.SessionID, "error", err)
		return nil, toolError(err)
	}

	return mcp.NewToolResultText(report), nil
}

// handleIndexRepository handles the index_repository tool invocation
func (s *Server) handleIndexRepository(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if err := validateRepoPath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	sessionID, ok := args["session"].(string)
	if !ok || sessionID == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "session parameter is required", map[string]interface{}{
			"param":  "session",
			"reason": "missing or empty",
		})
	}
	if err := validateSessionID(sessionID); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid session", map[string]interface{}{
			"param":  "session",
			"reason": err.Error(),
		})
	}

	force := getBoolDefault(args, "force", true)
	include := getStringSlice(args, "include_patterns")
	exclude := getStringSlice(args, "exclude_patterns")

	s.log.Debug("index_repository requested", "session", sessionID, "path", path, "force", force)

	stats, err := s.indexer.IndexRepository(ctx, sessionID, path, s.indexerConfig(include, exclude), force)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrSessionExists):
			data := map[string]interface{}{"session": sessionID}
			if existing, lookupErr := s.storage.GetSession(ctx, sessionID); lookupErr == nil {
				data["last_indexed_at"] = existing.LastIndexedAt.Format(time.RFC3339)
				data["file_count"] = existing.FileCount
			}
			return nil, newMCPError(ErrorCodeSessionExists,
				fmt.Sprintf("session '%s' already exists. Use force=true to re-index", sessionID), data)
		case errors.Is(err, types.ErrIndexingInProgress):
			return nil, newMCPError(ErrorCodeIndexingInProgress,
				fmt.Sprintf("session '%s' is already being indexed", sessionID), nil)
		case errors.Is(err, types.ErrInvalidParams):
			return nil, newMCPError(ErrorCodeInvalidParams, err.Error(), nil)
		default:
			s.log.Error("index_repository failed", "session", sessionID, "error", err)
			return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return mcp.NewToolResultText(renderIndexStats("Indexing complete!", sessionID, stats)), nil
}

// handleReindexSession handles the reindex_session tool invocation
func (s *Server) handleReindexSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	sessionID, err := requireSession(args)
	if err != nil {
		return nil, err
	}

	s.log.Debug("reindex_session requested", "session", sessionID)

	stats, err := s.indexer.ReindexSession(ctx, sessionID)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrSessionNotFound):
			return nil, newMCPError(ErrorCodeSessionNotFound,
				fmt.Sprintf("session '%s' not found", sessionID), nil)
		case errors.Is(err, types.ErrIndexingInProgress):
			return nil, newMCPError(ErrorCodeIndexingInProgress,
				fmt.Sprintf("session '%s' is already being indexed", sessionID), nil)
		default:
			s.log.Error("reindex_session failed", "session", sessionID, "error", err)
			return nil, newMCPError(ErrorCodeInternalError, "reindex failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return mcp.NewToolResultText(renderIndexStats("Reindex complete!", sessionID, stats)), nil
}

// handleListSessions handles the list_sessions tool invocation
func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions, err := s.storage.ListSessions(ctx)
	if err != nil {
		s.log.Error("list_sessions failed", "error", err)
		return nil, newMCPError(ErrorCodeInternalError, "failed to list sessions", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if len(sessions) == 0 {
		return mcp.NewToolResultText("No sessions available. Index a repository first."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Available sessions (%d):\n", len(sessions))
	for _, session := range sessions {
		fmt.Fprintf(&sb, "\n## %s\n\n", session.ID)
		fmt.Fprintf(&sb, "- Files: %d\n", session.FileCount)
		fmt.Fprintf(&sb, "- Size: %s\n", formatBytes(session.TotalBytes))
		fmt.Fprintf(&sb, "- Last indexed: %s\n", session.LastIndexedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "- Created: %s\n", session.CreatedAt.Format(time.RFC3339))
	}

	return mcp.NewToolResultText(sb.String()), nil
}

// handleGetSessionInfo handles the get_session_info tool invocation
func (s *Server) handleGetSessionInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	sessionID, err := requireSession(args)
	if err != nil {
		return nil, err
	}

	session, err := s.storage.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newMCPError(ErrorCodeSessionNotFound,
				fmt.Sprintf("session '%s' not found", sessionID), nil)
		}
		s.log.Error("get_session_info failed", "session", sessionID, "error", err)
		return nil, newMCPError(ErrorCodeInternalError, "failed to load session", map[string]interface{}{
			"error": err.Error(),
		})
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Session: %s\n\n", session.ID)
	sb.WriteString("## Overview\n\n")
	sb.WriteString("- Status: indexed\n")
	fmt.Fprintf(&sb, "- Root path: %s\n", session.RootPath)
	fmt.Fprintf(&sb, "- Files: %d\n", session.FileCount)
	fmt.Fprintf(&sb, "- Size: %s\n", formatBytes(session.TotalBytes))
	fmt.Fprintf(&sb, "- Created: %s\n", session.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "- Last indexed: %s\n", session.LastIndexedAt.Format(time.RFC3339))
	if session.LastRunID != "" {
		fmt.Fprintf(&sb, "- Last run: %s\n", session.LastRunID)
	}
	sb.WriteString("\n## Configuration\n\n")
	fmt.Fprintf(&sb, "- Include patterns: %s\n", patternList(session.IncludePatterns, "all files"))
	fmt.Fprintf(&sb, "- Exclude patterns: %s\n", patternList(session.ExcludePatterns, "built-in defaults"))
	fmt.Fprintf(&sb, "- Max file size: %s\n", formatBytes(session.MaxFileSize))

	return mcp.NewToolResultText(sb.String()), nil
}

// handleDeleteSession handles the delete_session tool invocation
func (s *Server) handleDeleteSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	sessionID, err := requireSession(args)
	if err != nil {
		return nil, err
	}

	confirm, _ := args["confirm"].(bool)
	if !confirm {
		return nil, newMCPError(ErrorCodeInvalidParams, "confirm must be true to delete a session", map[string]interface{}{
			"param":   "confirm",
			"session": sessionID,
		})
	}

	session, err := s.storage.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newMCPError(ErrorCodeSessionNotFound,
				fmt.Sprintf("session '%s' not found", sessionID), nil)
		}
		return nil, newMCPError(ErrorCodeInternalError, "failed to load session", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if err := s.storage.DeleteSession(ctx, sessionID); err != nil {
		s.log.Error("delete_session failed", "session", sessionID, "error", err)
		return nil, newMCPError(ErrorCodeInternalError, "failed to delete session", map[string]interface{}{
			"error": err.Error(),
		})
	}

	s.log.Info("session deleted", "session", sessionID, "files", session.FileCount)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Session '%s' deleted.\n\n", sessionID)
	fmt.Fprintf(&sb, "- Files removed: %d\n", session.FileCount)
	fmt.Fprintf(&sb, "- Space freed: %s\n", formatBytes(session.TotalBytes))

	return mcp.NewToolResultText(sb.String()), nil
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}
	if len(query) > maxSearchQueryLen {
		return nil, newMCPError(ErrorCodeInvalidParams,
			fmt.Sprintf("query must be at most %d characters", maxSearchQueryLen), map[string]interface{}{
				"param": "query",
			})
	}

	sessionID, err := requireSession(args)
	if err != nil {
		return nil, err
	}

	k := getIntDefault(args, "k", 10)
	if k < 1 || k > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "k must be between 1 and 100", map[string]interface{}{
			"param": "k",
			"value": k,
		})
	}

	if _, err := s.storage.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newMCPError(ErrorCodeSessionNotFound,
				fmt.Sprintf("session '%s' not found", sessionID), nil)
		}
		return nil, newMCPError(ErrorCodeInternalError, "failed to load session", map[string]interface{}{
			"error": err.Error(),
		})
	}

	start := time.Now()
	results, err := s.storage.SearchText(ctx, sessionID, query, k)
	if err != nil {
		s.log.Error("search_code failed", "session", sessionID, "error", err)
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	elapsed := time.Since(start).Milliseconds()

	s.log.Debug("search_code completed", "session", sessionID, "results", len(results), "duration_ms", elapsed)

	if len(results) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No results found for query '%s'.", query)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d results for query '%s' (%dms):\n", len(results), query, elapsed)
	for i, result := range results {
		fmt.Fprintf(&sb, "\n## Result %d (score: %.3f)\n\n", i+1, result.BM25Score)
		fmt.Fprintf(&sb, "**File:** %s\n\n", result.Path)
		fmt.Fprintf(&sb, "```%s\n%s\n```\n", refs.FenceTag(result.Path), result.Snippet)
	}

	return mcp.NewToolResultText(sb.String()), nil
}

// handleGetServerInfo handles the get_server_info tool invocation
func (s *Server) handleGetServerInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	schemaVersion := storage.CurrentSchemaVersion
	var dbLine string
	if status, err := s.storage.GetStatus(ctx); err == nil {
		if status.SchemaVersion != "" {
			schemaVersion = status.SchemaVersion
		}
		dbLine = fmt.Sprintf("- Database: %d sessions, %d files (%.1f MB)\n",
			status.SessionCount, status.FileCount, status.DBSizeMB)
	}

	var sb strings.Builder
	sb.WriteString("# RefScope MCP Server\n\n")
	fmt.Fprintf(&sb, "- Version: %s\n", ServerVersion)
	fmt.Fprintf(&sb, "- Build mode: %s (driver: %s)\n", storage.BuildMode, storage.DriverName)
	fmt.Fprintf(&sb, "- Schema version: %s\n", schemaVersion)
	sb.WriteString("- Protocol: MCP over stdio\n")
	sb.WriteString(dbLine)
	sb.WriteString("\n## Tools\n\n")
	for _, tool := range allTools() {
		fmt.Fprintf(&sb, "- %s\n", tool.Name)
	}

	return mcp.NewToolResultText(sb.String()), nil
}

// handleShowConfig handles the show_config tool invocation
func (s *Server) handleShowConfig(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rendered, err := s.config.Render()
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to render configuration", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText("# Active Configuration\n\n```toml\n" + rendered + "```\n"), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// toolError maps pipeline sentinel errors onto MCP error codes
func toolError(err error) error {
	switch {
	case errors.Is(err, types.ErrInvalidParams):
		return newMCPError(ErrorCodeInvalidParams, err.Error(), nil)
	case errors.Is(err, types.ErrSessionNotFound):
		return newMCPError(ErrorCodeSessionNotFound, err.Error(), nil)
	case errors.Is(err, types.ErrSessionExists):
		return newMCPError(ErrorCodeSessionExists, err.Error(), nil)
	case errors.Is(err, types.ErrIndexingInProgress):
		return newMCPError(ErrorCodeIndexingInProgress, err.Error(), nil)
	default:
		return newMCPError(ErrorCodeInternalError, err.Error(), nil)
	}
}

// requireSession extracts and validates the session parameter
func requireSession(args map[string]interface{}) (string, error) {
	sessionID, ok := args["session"].(string)
	if !ok || sessionID == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "session parameter is required", map[string]interface{}{
			"param":  "session",
			"reason": "missing or empty",
		})
	}
	if err := validateSessionID(sessionID); err != nil {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid session", map[string]interface{}{
			"param":  "session",
			"reason": err.Error(),
		})
	}
	return sessionID, nil
}

// validateSessionID enforces the session naming rule: 1 to 64 characters
// drawn from [A-Za-z0-9_-], starting with a letter or digit.
func validateSessionID(id string) error {
	if id == "" {
		return errors.New("session is required")
	}
	if len(id) > maxSessionIDLen {
		return fmt.Errorf("session must be at most %d characters", maxSessionIDLen)
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		alnum := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if i == 0 && !alnum {
			return errors.New("session must start with a letter or digit")
		}
		if !alnum && c != '_' && c != '-' {
			return fmt.Errorf("session contains invalid character %q", c)
		}
	}
	return nil
}

// validateRepoPath checks that a repository path is an absolute, existing directory
func validateRepoPath(path string) error {
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}
	return nil
}

// indexerConfig builds the walker configuration from server settings plus
// per-call include and exclude patterns.
func (s *Server) indexerConfig(include, exclude []string) *indexer.Config {
	cfg := &indexer.Config{
		Workers:         s.config.Indexing.Workers,
		IncludePatterns: include,
	}
	cfg.ExcludePatterns = append(cfg.ExcludePatterns, s.config.Indexing.Exclude...)
	cfg.ExcludePatterns = append(cfg.ExcludePatterns, exclude...)
	if s.config.Indexing.MaxFileSizeMB > 0 {
		cfg.MaxFileSize = int64(s.config.Indexing.MaxFileSizeMB) * 1024 * 1024
	}
	return cfg
}

// renderIndexStats formats an index run summary for tool output
func renderIndexStats(title, sessionID string, stats *indexer.Statistics) string {
	var sb strings.Builder
	sb.WriteString(title)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Session: %s\n", sessionID)
	fmt.Fprintf(&sb, "Files indexed: %d\n", stats.FilesIndexed)
	fmt.Fprintf(&sb, "Files skipped: %d\n", stats.FilesSkipped)
	if stats.FilesDeleted > 0 {
		fmt.Fprintf(&sb, "Files deleted: %d\n", stats.FilesDeleted)
	}
	if stats.FilesFailed > 0 {
		fmt.Fprintf(&sb, "Files failed: %d\n", stats.FilesFailed)
	}
	fmt.Fprintf(&sb, "Duration: %s\n", stats.Duration.Round(time.Millisecond))
	fmt.Fprintf(&sb, "Run ID: %s\n", stats.RunID)

	if len(stats.ErrorMessages) > 0 {
		msgs := stats.ErrorMessages
		if len(msgs) > 5 {
			msgs = msgs[:5]
		}
		sb.WriteString("\nWarnings:\n")
		for _, msg := range msgs {
			fmt.Fprintf(&sb, "- %s\n", msg)
		}
		if extra := len(stats.ErrorMessages) - len(msgs); extra > 0 {
			fmt.Fprintf(&sb, "- and %d more\n", extra)
		}
	}
	return sb.String()
}

// patternList formats a glob pattern list with a fallback for empty
func patternList(patterns []string, fallback string) string {
	if len(patterns) == 0 {
		return fallback
	}
	return strings.Join(patterns, ", ")
}

// formatBytes renders a byte count in human units
func formatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string array parameter. Arrays arrive as
// []interface{} over JSON; []string is accepted for direct callers.
func getStringSlice(args map[string]interface{}, key string) []string {
	switch vals := args[key].(type) {
	case []string:
		return vals
	case []interface{}:
		out := make([]string, 0, len(vals))
		for _, v := range vals {
			if str, ok := v.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// Validation helpers

var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
