package refs

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/refscope-mcp/pkg/types"
)

// scanWorkers bounds how many files are scanned concurrently
const scanWorkers = 8

// Scan finds every whole-word occurrence of q.Symbol across the snapshot,
// classified but not yet scored. The file named by q.DefinedIn is excluded
// from scanning entirely. Results are ordered by file path then position.
func Scan(ctx context.Context, snap *Snapshot, q Query) ([]types.Reference, error) {
	results := make([][]types.Reference, len(snap.Files))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, scanWorkers)

	for i, file := range snap.Files {
		if matchesDefinedIn(file.Path, q.DefinedIn) {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			select {
			case <-gctx.Done():
				return gctx.Err()
			case sem <- struct{}{}:
			}
			defer func() { <-sem }()

			results[i] = scanFile(file, q.Symbol)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var refs []types.Reference
	for _, fileRefs := range results {
		refs = append(refs, fileRefs...)
	}
	return refs, nil
}

// matchesDefinedIn compares a stored relative path against the defined_in
// parameter, tolerating a leading "./" on either side.
func matchesDefinedIn(path, definedIn string) bool {
	if definedIn == "" {
		return false
	}
	return strings.TrimPrefix(path, "./") == strings.TrimPrefix(definedIn, "./")
}

// scanFile collects all classified occurrences of symbol in one file.
// Block-comment state carries across lines; malformed source never fails,
// it just degrades to a plain classification.
func scanFile(file *SnapshotFile, symbol string) []types.Reference {
	sp := file.Lang.spec()
	isDoc := file.Lang == LangDoc
	inBlock := false

	var refs []types.Reference
	for i, line := range file.Lines {
		var blockSpans [][2]int
		lineComment := -1
		if !isDoc {
			blockSpans, lineComment, inBlock = lineLayout(line, sp, inBlock)
		}

		for _, pos := range findOccurrences(line, symbol) {
			class := types.ClassDocContext
			if !isDoc {
				class = classifyMatch(line, pos, pos+len(symbol), sp, blockSpans, lineComment)
			}
			refs = append(refs, types.Reference{
				File:           file.Path,
				Line:           i + 1,
				Column:         pos + 1,
				Classification: class,
				LineText:       line,
			})
		}
	}
	return refs
}

// findOccurrences returns the byte offsets of every whole-word occurrence
// of symbol in line: matches not adjacent to an identifier character.
func findOccurrences(line, symbol string) []int {
	var offsets []int
	for i := 0; ; {
		j := strings.Index(line[i:], symbol)
		if j < 0 {
			break
		}
		pos := i + j
		end := pos + len(symbol)
		if (pos == 0 || !isIdentChar(line[pos-1])) && (end == len(line) || !isIdentChar(line[end])) {
			offsets = append(offsets, pos)
			i = end
		} else {
			i = pos + 1
		}
	}
	return offsets
}

func isIdentChar(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}

// lineLayout walks one line and reports its block-comment spans, the
// position of the first line-comment marker outside those spans (-1 if
// none), and whether a block comment remains open at end of line.
func lineLayout(line string, sp langSpec, inBlock bool) (blockSpans [][2]int, lineComment int, outBlock bool) {
	lineComment = -1
	i := 0
	start := 0
	for {
		if inBlock {
			j := indexFrom(line, sp.blockEnd, i)
			if j < 0 {
				blockSpans = append(blockSpans, [2]int{start, len(line)})
				return blockSpans, lineComment, true
			}
			blockSpans = append(blockSpans, [2]int{start, j + len(sp.blockEnd)})
			i = j + len(sp.blockEnd)
			inBlock = false
			continue
		}

		lc := firstMarker(line, sp.lineComments, i)
		bs := -1
		if sp.blockStart != "" {
			bs = indexFrom(line, sp.blockStart, i)
		}
		if lc >= 0 && (bs < 0 || lc < bs) {
			return blockSpans, lc, false
		}
		if bs < 0 {
			return blockSpans, lineComment, false
		}
		start = bs
		i = bs + len(sp.blockStart)
		inBlock = true
	}
}

func indexFrom(s, sub string, from int) int {
	if from >= len(s) {
		return -1
	}
	j := strings.Index(s[from:], sub)
	if j < 0 {
		return -1
	}
	return from + j
}

func firstMarker(line string, markers []string, from int) int {
	first := -1
	for _, m := range markers {
		if j := indexFrom(line, m, from); j >= 0 && (first < 0 || j < first) {
			first = j
		}
	}
	return first
}

// classifyMatch assigns one of the syntactic categories to an occurrence
// at [pos, end). Precedence: comment, then import, declaration, call,
// plain.
func classifyMatch(line string, pos, end int, sp langSpec, blockSpans [][2]int, lineComment int) types.Classification {
	for _, span := range blockSpans {
		if pos >= span[0] && pos < span[1] {
			return types.ClassComment
		}
	}
	if lineComment >= 0 && pos > lineComment {
		return types.ClassComment
	}
	if isImportLine(line, sp) {
		return types.ClassImportOrUse
	}
	if kw := wordBefore(line, pos); kw != "" && containsWord(sp.declKeywords, kw) {
		return types.ClassDeclaration
	}
	if nextNonSpace(line, end) == '(' {
		return types.ClassCall
	}
	return types.ClassPlain
}

// isImportLine reports whether the trimmed line begins with one of the
// class's import keywords followed by whitespace, a brace, a paren, or a
// quote.
func isImportLine(line string, sp langSpec) bool {
	trimmed := strings.TrimLeft(line, " \t")
	for _, kw := range sp.importKeywords {
		if !strings.HasPrefix(trimmed, kw) {
			continue
		}
		rest := trimmed[len(kw):]
		if rest == "" {
			continue
		}
		switch rest[0] {
		case ' ', '\t', '{', '(', '"', '\'':
			return true
		}
	}
	return false
}

// wordBefore returns the identifier token immediately preceding pos,
// skipping whitespace, or "" when none.
func wordBefore(line string, pos int) string {
	j := pos - 1
	for j >= 0 && (line[j] == ' ' || line[j] == '\t') {
		j--
	}
	if j < 0 {
		return ""
	}
	end := j + 1
	for j >= 0 && isIdentChar(line[j]) {
		j--
	}
	return line[j+1 : end]
}

func containsWord(words []string, w string) bool {
	for _, candidate := range words {
		if candidate == w {
			return true
		}
	}
	return false
}

func nextNonSpace(line string, from int) byte {
	for i := from; i < len(line); i++ {
		if line[i] != ' ' && line[i] != '\t' {
			return line[i]
		}
	}
	return 0
}
