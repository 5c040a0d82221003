// Package refs implements the reference search and confidence scoring
// engine.
//
// Given an indexed session, the engine finds every whole-word occurrence
// of a symbol across the session's files, classifies the surrounding
// syntax, scores each occurrence with a confidence value, and renders a
// ranked markdown report.
//
// The pipeline runs strictly in one direction:
//
//	validate -> classify languages -> scan -> score -> filter/rank -> render
//
// # Basic Usage
//
//	engine := refs.NewEngine(store, logger)
//
//	q, err := refs.ParseQuery(map[string]interface{}{
//	    "session_id": "myapp",
//	    "symbol":     "handleLogin",
//	    "symbol_type": "function",
//	})
//	if err != nil {
//	    return err // wraps types.ErrInvalidParams
//	}
//
//	report, err := engine.FindReferences(ctx, q)
//
// # Classification
//
// Each occurrence is classified by lightweight per-language heuristics
// selected by file extension:
//   - call: symbol followed by "(" (optionally after whitespace)
//   - declaration: preceded by a declaration keyword (fn, def, func, ...)
//   - import_or_use: on a line starting with an import/use/from keyword
//   - comment: after a line-comment marker or inside a block comment
//   - doc_context: any occurrence in a documentation file (.md, .txt, ...)
//   - plain: none of the above
//
// Classification never fails; malformed source degrades to plain.
//
// # Confidence Scoring
//
// Confidence is a pure function of the classification and the file's
// test status:
//
//	call 0.85 > declaration 0.80 > import_or_use 0.75 > plain 0.60
//	     > comment 0.55 > doc_context 0.45
//
// Test files add +0.05, clamped to [0.0, 1.0]. Comment matches always
// score below 0.70 and documentation matches below 0.55, so mention-only
// occurrences sink to the bottom of the ranking.
//
// # Filtering
//
// Declaration matches are dropped unless include_definition is set; the
// defined_in file is excluded from scanning entirely. The symbol_type
// filter constrains code-shaped categories only (a call shape is dropped
// for type/variable/constant queries); comment and doc_context mentions
// are always retained.
//
// # Report Format
//
// Results render as markdown: a header with the session's indexing
// timestamp and total count, then one section per reference with a
// fenced excerpt of context_lines lines around the match and its
// confidence. Zero matches renders "No references found", which is a
// successful result, not an error.
//
// # Concurrency
//
// Queries are independent and may run concurrently. Session snapshots
// are immutable and shared through an LRU cache keyed by session ID;
// a re-index invalidates the cached snapshot via the session's
// last-indexed timestamp. Files within one query scan concurrently under
// a bounded worker limit.
package refs
