// Package types provides shared type definitions for the RefScope MCP server.
//
// This package defines the domain types used across multiple components of
// RefScope: symbol reference results, their syntactic classifications, and
// the symbol-type filter vocabulary.
//
// # References
//
// Reference represents one located occurrence of a symbol inside an indexed
// session, with a syntactic classification and a confidence score:
//
//	ref := &types.Reference{
//	    File:           "src/handlers.rs",
//	    Line:           42,
//	    Column:         13,
//	    Classification: types.ClassCall,
//	    Confidence:     0.85,
//	    LineText:       "    let total = calculate_total(&items);",
//	}
//
// # Classifications
//
// Every occurrence is classified into exactly one of six categories:
//
//	types.ClassCall        // symbol followed by "("
//	types.ClassImportOrUse // import/use/from statement
//	types.ClassDeclaration // definition head (fn, def, func, class, ...)
//	types.ClassComment     // behind a comment marker
//	types.ClassDocContext  // occurrence in a documentation file (.md, .txt)
//	types.ClassPlain       // bare textual occurrence
//
// Confidence scores are normalized to [0, 1], with higher values indicating
// a higher likelihood that the occurrence is a genuine reference rather
// than incidental text.
//
// # Validation
//
// Domain types implement validation methods to ensure data integrity:
//
//	if err := ref.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package types
