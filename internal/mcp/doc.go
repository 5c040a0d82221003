// Package mcp implements the Model Context Protocol (MCP) server for RefScope.
//
// The MCP server exposes nine tools to AI coding assistants:
//   - find_references: Find references to a symbol with confidence scores
//   - index_repository: Index a repository into a named session
//   - reindex_session: Re-index a session with its stored configuration
//   - list_sessions: List all indexed sessions
//   - get_session_info: Inspect a single session
//   - delete_session: Delete a session and its content
//   - search_code: Full-text search over a session (BM25)
//   - get_server_info: Report version and build information
//   - show_config: Render the active configuration
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server communicates with MCP clients via standard input/output.
// Stdout carries protocol messages only; all logging goes to stderr.
//
// # Basic Usage
//
// The MCP server is typically started via the serve command:
//
//	refscope serve
//
// It then listens on stdin for MCP protocol messages and writes responses
// to stdout.
//
// # Tool: find_references
//
// Find every occurrence of a symbol across an indexed session:
//
//	Request:
//	{
//	  "name": "find_references",
//	  "arguments": {
//	    "session_id": "billing",
//	    "symbol": "calculate_total",
//	    "symbol_type": "function",
//	    "defined_in": "src/lib.rs",
//	    "context_lines": 2,
//	    "max_results": 50
//	  }
//	}
//
//	Response (markdown):
//	# References to `calculate_total`
//
//	Session indexed: 2026-01-15T10:30:00Z
//	Found 3 references (showing 3)
//
//	## src/handlers.rs:42
//
//	```rust
//	fn respond(items: &[f64]) -> f64 {
//	    crate::calculate_total(items)
//	}
//	```
//
//	Confidence: 0.85
//
// Each occurrence is classified (call, declaration, import_or_use, plain,
// comment, doc_context) and scored in [0.0, 1.0]. Results are sorted by
// confidence descending with deterministic tie-breaking on path and line.
//
// # Session Management
//
// Sessions are named snapshots of a repository. index_repository creates
// or replaces one; reindex_session refreshes it incrementally (unchanged
// files are skipped by content hash); list_sessions, get_session_info, and
// delete_session manage the inventory:
//
//	Request:
//	{
//	  "name": "index_repository",
//	  "arguments": {
//	    "path": "/path/to/repo",
//	    "session": "billing",
//	    "include_patterns": ["**/*.rs"],
//	    "force": true
//	  }
//	}
//
//	Response:
//	Indexing complete!
//
//	Session: billing
//	Files indexed: 247
//	Files skipped: 12
//	Duration: 840ms
//	Run ID: 550e8400-e29b-41d4-a716-446655440000
//
// delete_session requires "confirm": true; without it the call fails with
// invalid params.
//
// # Tool: search_code
//
// Keyword search over the indexed content using SQLite FTS5:
//
//	Request:
//	{
//	  "name": "search_code",
//	  "arguments": {
//	    "query": "invoice total",
//	    "session": "billing",
//	    "k": 10
//	  }
//	}
//
//	Response (markdown):
//	Found 2 results for query 'invoice total' (3ms):
//
//	## Result 1 (score: 4.512)
//
//	**File:** src/lib.rs
//
//	```rust
//	…snippet…
//	```
//
// # Error Handling
//
// Tool failures are returned as standard JSON-RPC error responses:
//
//	{
//	  "error": {
//	    "code": -32602,
//	    "message": "invalid session",
//	    "data": {
//	      "param": "session",
//	      "reason": "session must start with a letter or digit"
//	    }
//	  }
//	}
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (database, filesystem, etc.)
//   - -32001: Session not found
//   - -32002: Session already exists (index_repository with force=false)
//   - -32003: Indexing already in progress for the session
//
// An empty result set is a successful response, never an error.
//
// # MCP Client Configuration
//
// Configure in an MCP client's settings:
//
//	{
//	  "mcpServers": {
//	    "refscope": {
//	      "command": "/usr/local/bin/refscope",
//	      "args": ["serve"],
//	      "env": {
//	        "REFSCOPE_DB_PATH": "~/.refscope/refscope.db"
//	      }
//	    }
//	  }
//	}
//
// # Logging
//
// The server logs to stderr with log/slog (stdout is reserved for the MCP
// protocol). Level and format come from the configuration file or:
//
//	REFSCOPE_LOG_LEVEL=debug refscope serve
//
// Handlers log requests at Debug and failures at Error with structured
// attributes.
package mcp
