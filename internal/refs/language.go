package refs

import (
	"path/filepath"
	"strings"
)

// LanguageClass identifies which syntactic pattern set applies to a file.
type LanguageClass string

const (
	LangRust       LanguageClass = "rust"
	LangPython     LanguageClass = "python"
	LangGo         LanguageClass = "go"
	LangTypeScript LanguageClass = "typescript"
	LangDoc        LanguageClass = "documentation"
	LangGeneric    LanguageClass = "generic"
)

// langSpec describes the syntax heuristics available for a language class.
// Classes without block comments leave blockStart/blockEnd empty.
type langSpec struct {
	lineComments   []string
	blockStart     string
	blockEnd       string
	importKeywords []string
	declKeywords   []string
}

var langSpecs = map[LanguageClass]langSpec{
	LangRust: {
		lineComments:   []string{"//"},
		blockStart:     "/*",
		blockEnd:       "*/",
		importKeywords: []string{"pub use", "use"},
		declKeywords:   []string{"fn", "struct", "enum", "trait", "type", "let", "const", "static", "mod"},
	},
	LangPython: {
		lineComments:   []string{"#"},
		importKeywords: []string{"import", "from"},
		declKeywords:   []string{"def", "class"},
	},
	LangGo: {
		lineComments:   []string{"//"},
		blockStart:     "/*",
		blockEnd:       "*/",
		importKeywords: []string{"import"},
		declKeywords:   []string{"func", "type", "var", "const", "package"},
	},
	LangTypeScript: {
		lineComments:   []string{"//"},
		blockStart:     "/*",
		blockEnd:       "*/",
		importKeywords: []string{"import", "export", "require"},
		declKeywords:   []string{"function", "class", "interface", "type", "let", "const", "var", "enum"},
	},
	LangDoc: {},
	LangGeneric: {
		lineComments: []string{"//", "#"},
	},
}

// ClassifyFile maps a file path to its language class. Unknown extensions
// fall back to the generic class; classification never fails.
func ClassifyFile(path string) LanguageClass {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".rs":
		return LangRust
	case ".py", ".pyi":
		return LangPython
	case ".go":
		return LangGo
	case ".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs":
		return LangTypeScript
	case ".md", ".markdown", ".txt", ".rst":
		return LangDoc
	default:
		return LangGeneric
	}
}

// spec returns the syntax heuristics for the class.
func (c LanguageClass) spec() langSpec {
	if s, ok := langSpecs[c]; ok {
		return s
	}
	return langSpecs[LangGeneric]
}

var fenceTags = map[string]string{
	".rs":   "rust",
	".py":   "python",
	".pyi":  "python",
	".go":   "go",
	".ts":   "typescript",
	".tsx":  "typescript",
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".cjs":  "javascript",
	".md":   "markdown",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
	".sh":   "bash",
	".bash": "bash",
	".sql":  "sql",
	".html": "html",
	".css":  "css",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".hpp":  "cpp",
	".java": "java",
	".rb":   "ruby",
	".kt":   "kotlin",
	".php":  "php",
}

// FenceTag returns the fenced-code-block language tag for a file path,
// or the empty string when the extension is not recognized.
func FenceTag(path string) string {
	return fenceTags[strings.ToLower(filepath.Ext(path))]
}

// IsTestFile reports whether a path matches the test-file naming
// convention: a directory segment named test, tests, or __tests__, or a
// base name (without extension) that starts or ends with "test".
func IsTestFile(path string) bool {
	segments := strings.Split(filepath.ToSlash(path), "/")
	for _, seg := range segments[:len(segments)-1] {
		switch strings.ToLower(seg) {
		case "test", "tests", "__tests__":
			return true
		}
	}

	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	lower := strings.ToLower(base)
	return strings.HasPrefix(lower, "test") || strings.HasSuffix(lower, "test")
}
