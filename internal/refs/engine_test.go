package refs

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/refscope-mcp/internal/storage"
	"github.com/dshills/refscope-mcp/pkg/types"
)

func setupEngine(t *testing.T, sessionID string, files map[string]string) (*Engine, *storage.SQLiteStorage) {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	session := &storage.Session{ID: sessionID, RootPath: "/tmp/" + sessionID}
	require.NoError(t, store.CreateSession(ctx, session))

	for path, content := range files {
		require.NoError(t, store.UpsertFile(ctx, &storage.File{
			SessionID:   sessionID,
			Path:        path,
			Content:     content,
			LineCount:   len(splitLines(content)),
			SizeBytes:   int64(len(content)),
			ContentHash: 1,
			IsTest:      IsTestFile(path),
			LangClass:   string(ClassifyFile(path)),
		}))
	}

	return NewEngine(store, nil), store
}

func billingFiles() map[string]string {
	return map[string]string{
		"src/lib.rs": "pub fn calculate_total(items: &[f64]) -> f64 {\n" +
			"    items.iter().sum()\n" +
			"}\n",
		"src/handlers.rs": "pub fn checkout(items: &[f64]) -> f64 {\n" +
			"    crate::calculate_total(items)\n" +
			"}\n",
		"tests/lib_test.rs": "#[test]\n" +
			"fn totals_sum() {\n" +
			"    assert_eq!(crate::calculate_total(&[1.0, 2.0]), 3.0);\n" +
			"}\n",
		"README.md": "# Billing\n" +
			"\n" +
			"The `calculate_total` helper sums cart items.\n",
	}
}

func TestEngine_FunctionQueryAcrossFiles(t *testing.T) {
	engine, _ := setupEngine(t, "billing", billingFiles())

	q, err := ParseQuery(map[string]interface{}{
		"session_id":  "billing",
		"symbol":      "calculate_total",
		"symbol_type": "function",
	})
	require.NoError(t, err)

	report, err := engine.FindReferences(context.Background(), q)
	require.NoError(t, err)

	assert.Contains(t, report, "Found 3 references (showing 3)")

	// Test-file call is boosted above the plain call; the prose mention
	// ranks last
	testPos := strings.Index(report, "## tests/lib_test.rs:3")
	callPos := strings.Index(report, "## src/handlers.rs:2")
	docPos := strings.Index(report, "## README.md:3")
	require.GreaterOrEqual(t, testPos, 0)
	require.GreaterOrEqual(t, callPos, 0)
	require.GreaterOrEqual(t, docPos, 0)
	assert.Less(t, testPos, callPos)
	assert.Less(t, callPos, docPos)

	assert.Contains(t, report, "Confidence: 0.90")
	assert.Contains(t, report, "Confidence: 0.85")
	assert.Contains(t, report, "Confidence: 0.45")

	// The declaration site is excluded by default
	assert.NotContains(t, report, "## src/lib.rs")
}

func TestEngine_IncludeDefinition(t *testing.T) {
	engine, _ := setupEngine(t, "billing", billingFiles())

	q, err := ParseQuery(map[string]interface{}{
		"session_id":         "billing",
		"symbol":             "calculate_total",
		"include_definition": true,
	})
	require.NoError(t, err)

	report, err := engine.FindReferences(context.Background(), q)
	require.NoError(t, err)

	assert.Contains(t, report, "Found 4 references (showing 4)")
	assert.Contains(t, report, "## src/lib.rs:1")
}

func TestEngine_DefinedInExcludesFile(t *testing.T) {
	engine, _ := setupEngine(t, "billing", billingFiles())

	q, err := ParseQuery(map[string]interface{}{
		"session_id":         "billing",
		"symbol":             "calculate_total",
		"defined_in":         "src/lib.rs",
		"include_definition": true,
	})
	require.NoError(t, err)

	report, err := engine.FindReferences(context.Background(), q)
	require.NoError(t, err)

	assert.Contains(t, report, "Found 3 references (showing 3)")
	assert.NotContains(t, report, "## src/lib.rs")
}

func TestEngine_NoMatchesIsSuccess(t *testing.T) {
	engine, _ := setupEngine(t, "billing", billingFiles())

	q, err := ParseQuery(map[string]interface{}{
		"session_id": "billing",
		"symbol":     "nonexistent_symbol",
	})
	require.NoError(t, err)

	report, err := engine.FindReferences(context.Background(), q)
	require.NoError(t, err)

	assert.Contains(t, report, "No references found for `nonexistent_symbol`")
	assert.Contains(t, report, "Session indexed: ")
}

func TestEngine_SessionNotFound(t *testing.T) {
	engine, _ := setupEngine(t, "billing", billingFiles())

	q, err := ParseQuery(map[string]interface{}{
		"session_id": "ghost",
		"symbol":     "calculate_total",
	})
	require.NoError(t, err)

	_, err = engine.FindReferences(context.Background(), q)
	assert.ErrorIs(t, err, types.ErrSessionNotFound)
}

func TestEngine_InvalidQueryRejected(t *testing.T) {
	engine, _ := setupEngine(t, "billing", billingFiles())

	q := Query{
		SessionID:    "billing",
		Symbol:       "a",
		SymbolType:   types.SymbolTypeAny,
		ContextLines: 2,
		MaxResults:   50,
	}

	_, err := engine.FindReferences(context.Background(), q)
	assert.ErrorIs(t, err, types.ErrInvalidParams)
}

func TestEngine_MaxResultsTruncates(t *testing.T) {
	engine, _ := setupEngine(t, "billing", billingFiles())

	q, err := ParseQuery(map[string]interface{}{
		"session_id":  "billing",
		"symbol":      "calculate_total",
		"max_results": float64(1),
	})
	require.NoError(t, err)

	report, err := engine.FindReferences(context.Background(), q)
	require.NoError(t, err)

	assert.Contains(t, report, "Found 3 references (showing 1)")
	// The single reference shown is the highest confidence one
	assert.Contains(t, report, "## tests/lib_test.rs:3")
	assert.NotContains(t, report, "## src/handlers.rs")
}

func TestEngine_LongSymbolAndMaxBounds(t *testing.T) {
	symbol := strings.Repeat("z", 200)
	content := "fn main() {\n" +
		"    let total = " + symbol + " + 1;\n" +
		"    println!(\"{}\", " + symbol + ");\n" +
		"}\n"
	engine, _ := setupEngine(t, "big", map[string]string{"src/main.rs": content})

	q, err := ParseQuery(map[string]interface{}{
		"session_id":    "big",
		"symbol":        symbol,
		"max_results":   float64(200),
		"context_lines": float64(10),
	})
	require.NoError(t, err)

	report, err := engine.FindReferences(context.Background(), q)
	require.NoError(t, err)
	assert.Contains(t, report, "Found 2 references (showing 2)")
}

func TestEngine_SnapshotRefreshAfterReindex(t *testing.T) {
	engine, store := setupEngine(t, "billing", billingFiles())
	ctx := context.Background()

	q, err := ParseQuery(map[string]interface{}{
		"session_id": "billing",
		"symbol":     "calculate_total",
	})
	require.NoError(t, err)

	report, err := engine.FindReferences(ctx, q)
	require.NoError(t, err)
	assert.Contains(t, report, "Found 3 references (showing 3)")

	// Simulate a re-index that adds a caller and bumps the session
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, store.UpsertFile(ctx, &storage.File{
		SessionID:   "billing",
		Path:        "src/reports.rs",
		Content:     "let grand = crate::calculate_total(&all);\n",
		ContentHash: 2,
	}))
	session, err := store.GetSession(ctx, "billing")
	require.NoError(t, err)
	require.NoError(t, store.UpdateSession(ctx, session))

	report, err = engine.FindReferences(ctx, q)
	require.NoError(t, err)
	assert.Contains(t, report, "Found 4 references (showing 4)")
	assert.Contains(t, report, "## src/reports.rs:1")
}

func TestEngine_ConcurrentQueries(t *testing.T) {
	engine, _ := setupEngine(t, "billing", billingFiles())

	q, err := ParseQuery(map[string]interface{}{
		"session_id": "billing",
		"symbol":     "calculate_total",
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			report, err := engine.FindReferences(context.Background(), q)
			if err == nil && !strings.Contains(report, "Found 3 references") {
				err = assert.AnError
			}
			errs[n] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}
