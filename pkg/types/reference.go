package types

// Classification describes the syntactic shape of one symbol occurrence.
type Classification string

const (
	ClassCall        Classification = "call"          // symbol followed by "("
	ClassImportOrUse Classification = "import_or_use" // import/use/from statement
	ClassDeclaration Classification = "declaration"   // definition head (fn/def/func/...)
	ClassComment     Classification = "comment"       // after a comment marker or in a block comment
	ClassDocContext  Classification = "doc_context"   // occurrence in a documentation file
	ClassPlain       Classification = "plain"         // bare textual occurrence
)

// Valid reports whether c is one of the six known classifications.
func (c Classification) Valid() bool {
	switch c {
	case ClassCall, ClassImportOrUse, ClassDeclaration, ClassComment, ClassDocContext, ClassPlain:
		return true
	}
	return false
}

// SymbolType narrows a reference query to one kind of symbol.
type SymbolType string

const (
	SymbolTypeFunction SymbolType = "function"
	SymbolTypeType     SymbolType = "type"
	SymbolTypeVariable SymbolType = "variable"
	SymbolTypeConstant SymbolType = "constant"
	SymbolTypeAny      SymbolType = "any"
)

// Valid reports whether st is one of the five accepted symbol types.
func (st SymbolType) Valid() bool {
	switch st {
	case SymbolTypeFunction, SymbolTypeType, SymbolTypeVariable, SymbolTypeConstant, SymbolTypeAny:
		return true
	}
	return false
}

// Reference represents a single located occurrence of a symbol.
type Reference struct {
	// Location
	File   string // Relative to session root
	Line   int    // 1-based
	Column int    // 1-based byte offset within the line

	// Classification and scoring
	Classification Classification
	Confidence     float64 // [0, 1]

	// The raw line the occurrence was found on
	LineText string
}

// Validate checks if the reference is well formed
func (r *Reference) Validate() error {
	if r.File == "" {
		return ErrMissingFilePath
	}

	if r.Line < 1 {
		return ErrInvalidLine
	}

	if r.Column < 1 {
		return ErrInvalidColumn
	}

	if r.Confidence < 0 || r.Confidence > 1 {
		return ErrInvalidConfidence
	}

	if !r.Classification.Valid() {
		return ErrInvalidClassification
	}

	return nil
}
