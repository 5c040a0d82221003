package refs

import (
	"fmt"
	"strings"
	"time"

	"github.com/dshills/refscope-mcp/pkg/types"
)

// Render produces the markdown report for a completed search. refs must
// already be filtered, ranked, and truncated; total is the pre-truncation
// count. Zero references is a successful report, not an error.
func Render(snap *Snapshot, q Query, refs []types.Reference, total int) string {
	indexed := snap.IndexedAt.UTC().Format(time.RFC3339)

	var b strings.Builder
	if len(refs) == 0 {
		b.WriteString(fmt.Sprintf("No references found for `%s`\n\n", q.Symbol))
		b.WriteString(fmt.Sprintf("Session indexed: %s\n", indexed))
		return b.String()
	}

	b.WriteString(fmt.Sprintf("# References to `%s`\n\n", q.Symbol))
	b.WriteString(fmt.Sprintf("Session indexed: %s\n", indexed))
	b.WriteString(fmt.Sprintf("Found %d references (showing %d)\n", total, len(refs)))

	for _, ref := range refs {
		b.WriteString(fmt.Sprintf("\n## %s:%d\n\n", ref.File, ref.Line))

		b.WriteString("```")
		b.WriteString(FenceTag(ref.File))
		b.WriteByte('\n')
		lines := snap.Excerpt(ref.File, ref.Line, q.ContextLines)
		if lines == nil {
			lines = []string{ref.LineText}
		}
		for _, line := range lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteString("```\n\n")

		b.WriteString(fmt.Sprintf("Confidence: %.2f\n", ref.Confidence))
	}

	return b.String()
}
