package refs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dshills/refscope-mcp/pkg/types"
)

var allClassifications = []types.Classification{
	types.ClassCall,
	types.ClassDeclaration,
	types.ClassImportOrUse,
	types.ClassPlain,
	types.ClassComment,
	types.ClassDocContext,
}

func TestScore_BaseValues(t *testing.T) {
	tests := []struct {
		class types.Classification
		want  float64
	}{
		{types.ClassCall, 0.85},
		{types.ClassDeclaration, 0.80},
		{types.ClassImportOrUse, 0.75},
		{types.ClassPlain, 0.60},
		{types.ClassComment, 0.55},
		{types.ClassDocContext, 0.45},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, Score(tt.class, false), 1e-9, string(tt.class))
	}
}

func TestScore_TestFileBoost(t *testing.T) {
	for _, class := range allClassifications {
		base := Score(class, false)
		boosted := Score(class, true)
		assert.InDelta(t, 0.05, boosted-base, 1e-9, string(class))
	}
}

func TestScore_StrictOrdering(t *testing.T) {
	for _, isTest := range []bool{false, true} {
		for i := 1; i < len(allClassifications); i++ {
			higher := Score(allClassifications[i-1], isTest)
			lower := Score(allClassifications[i], isTest)
			assert.Greater(t, higher, lower,
				"%s vs %s (test=%v)", allClassifications[i-1], allClassifications[i], isTest)
		}
	}
}

func TestScore_CommentAndDocBounds(t *testing.T) {
	for _, isTest := range []bool{false, true} {
		assert.Less(t, Score(types.ClassComment, isTest), 0.70)
		assert.Less(t, Score(types.ClassDocContext, isTest), 0.55)
	}
}

func TestScore_WithinUnitInterval(t *testing.T) {
	for _, class := range allClassifications {
		for _, isTest := range []bool{false, true} {
			got := Score(class, isTest)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		}
	}
}

func TestScore_UnknownClassification(t *testing.T) {
	// An unrecognized classification scores like a plain occurrence
	assert.InDelta(t, 0.60, Score(types.Classification("mystery"), false), 1e-9)
}
