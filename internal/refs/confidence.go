package refs

import "github.com/dshills/refscope-mcp/pkg/types"

// Base confidence per classification. The ordering is part of the
// contract: call > declaration > import_or_use > plain > comment >
// doc_context, with comment always below 0.70 and doc_context always
// below 0.55.
const (
	confCall        = 0.85
	confDeclaration = 0.80
	confImportOrUse = 0.75
	confPlain       = 0.60
	confComment     = 0.55
	confDocContext  = 0.45

	// testFileBoost is added when the file matches the test naming
	// convention.
	testFileBoost = 0.05
)

// Score computes the confidence for a single match. It is a pure function
// of the classification and the file's test status, so matches can be
// scored independently and in any order.
func Score(class types.Classification, isTestFile bool) float64 {
	var base float64
	switch class {
	case types.ClassCall:
		base = confCall
	case types.ClassDeclaration:
		base = confDeclaration
	case types.ClassImportOrUse:
		base = confImportOrUse
	case types.ClassComment:
		base = confComment
	case types.ClassDocContext:
		base = confDocContext
	default:
		base = confPlain
	}

	if isTestFile {
		base += testFileBoost
	}

	if base < 0 {
		return 0
	}
	if base > 1 {
		return 1
	}
	return base
}
