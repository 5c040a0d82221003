package refs

import (
	"sort"

	"github.com/dshills/refscope-mcp/pkg/types"
)

// FilterAndRank applies the definition and symbol-type filters, sorts the
// survivors into a deterministic order, and truncates to q.MaxResults.
// The returned total is the post-filter count before truncation.
func FilterAndRank(refs []types.Reference, q Query) ([]types.Reference, int) {
	kept := make([]types.Reference, 0, len(refs))
	for _, ref := range refs {
		if ref.Classification == types.ClassDeclaration && !q.IncludeDefinition {
			continue
		}
		if !classAllowed(q.SymbolType, ref.Classification) {
			continue
		}
		kept = append(kept, ref)
	}

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].Confidence != kept[j].Confidence {
			return kept[i].Confidence > kept[j].Confidence
		}
		if kept[i].File != kept[j].File {
			return kept[i].File < kept[j].File
		}
		if kept[i].Line != kept[j].Line {
			return kept[i].Line < kept[j].Line
		}
		return kept[i].Column < kept[j].Column
	})

	total := len(kept)
	if total > q.MaxResults {
		kept = kept[:q.MaxResults]
	}
	return kept, total
}

// classAllowed is the symbol-type filter mapping. Mention categories
// (comment, doc_context) are kept under every symbol type; the filter
// only constrains code-shaped categories. A call shape is dropped for
// non-callable types.
func classAllowed(symbolType types.SymbolType, class types.Classification) bool {
	if class == types.ClassComment || class == types.ClassDocContext {
		return true
	}
	switch symbolType {
	case types.SymbolTypeAny, types.SymbolTypeFunction:
		return true
	default:
		return class != types.ClassCall
	}
}
