package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// allTools returns every tool definition the server registers, in
// registration order.
func allTools() []mcp.Tool {
	return []mcp.Tool{
		findReferencesTool(),
		indexRepositoryTool(),
		reindexSessionTool(),
		listSessionsTool(),
		getSessionInfoTool(),
		deleteSessionTool(),
		searchCodeTool(),
		getServerInfoTool(),
		showConfigTool(),
	}
}

// findReferencesTool returns the tool definition for find_references
func findReferencesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_references",
		Description: "Find references to a symbol across an indexed session, scored by confidence and returned as a ranked markdown report",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session holding the indexed snapshot to search",
				},
				"symbol": map[string]interface{}{
					"type":        "string",
					"description": "Symbol name to search for (2-200 characters, matched as a whole word)",
				},
				"symbol_type": map[string]interface{}{
					"type":        "string",
					"description": "Kind of symbol; non-callable kinds drop call-shaped matches",
					"enum":        []string{"function", "type", "variable", "constant", "any"},
					"default":     "any",
				},
				"defined_in": map[string]interface{}{
					"type":        "string",
					"description": "Relative path of the defining file; that file is excluded from the scan entirely",
				},
				"include_definition": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, include declaration matches in the results",
					"default":     false,
				},
				"context_lines": map[string]interface{}{
					"type":        "integer",
					"description": "Lines of context before and after each match (0-10)",
					"default":     2,
					"minimum":     0,
					"maximum":     10,
				},
				"max_results": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of references to return (1-200)",
					"default":     50,
					"minimum":     1,
					"maximum":     200,
				},
			},
			Required: []string{"session_id", "symbol"},
		},
	}
}

// indexRepositoryTool returns the tool definition for index_repository
func indexRepositoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_repository",
		Description: "Index a repository into a named session so it can be searched",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the repository root",
				},
				"session": map[string]interface{}{
					"type":        "string",
					"description": "Session identifier: 1-64 characters from [A-Za-z0-9_-], starting with a letter or digit",
				},
				"include_patterns": map[string]interface{}{
					"type":        "array",
					"description": "Glob patterns; when given, only matching files are indexed",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"exclude_patterns": map[string]interface{}{
					"type":        "array",
					"description": "Glob patterns excluded on top of the built-in defaults",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, replace an existing session with the same identifier",
					"default":     true,
				},
			},
			Required: []string{"path", "session"},
		},
	}
}

// reindexSessionTool returns the tool definition for reindex_session
func reindexSessionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "reindex_session",
		Description: "Re-index an existing session using its stored root path and patterns; unchanged files are skipped",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session": map[string]interface{}{
					"type":        "string",
					"description": "Session identifier to re-index",
				},
			},
			Required: []string{"session"},
		},
	}
}

// listSessionsTool returns the tool definition for list_sessions
func listSessionsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_sessions",
		Description: "List all indexed sessions with their file counts and timestamps",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// getSessionInfoTool returns the tool definition for get_session_info
func getSessionInfoTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_session_info",
		Description: "Show detailed information about one session, including its indexing configuration",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session": map[string]interface{}{
					"type":        "string",
					"description": "Session identifier to inspect",
				},
			},
			Required: []string{"session"},
		},
	}
}

// deleteSessionTool returns the tool definition for delete_session
func deleteSessionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "delete_session",
		Description: "Delete a session and all of its indexed file content",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session": map[string]interface{}{
					"type":        "string",
					"description": "Session identifier to delete",
				},
				"confirm": map[string]interface{}{
					"type":        "boolean",
					"description": "Must be true; deletion is irreversible",
				},
			},
			Required: []string{"session", "confirm"},
		},
	}
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Full-text search over a session's indexed files, ranked by BM25",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (1-500 characters, FTS5 match syntax)",
				},
				"session": map[string]interface{}{
					"type":        "string",
					"description": "Session to search",
				},
				"k": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"query", "session"},
		},
	}
}

// getServerInfoTool returns the tool definition for get_server_info
func getServerInfoTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_server_info",
		Description: "Report server version, build mode, schema version, and available tools",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// showConfigTool returns the tool definition for show_config
func showConfigTool() mcp.Tool {
	return mcp.Tool{
		Name:        "show_config",
		Description: "Render the active server configuration as TOML",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
