package integration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/dshills/refscope-mcp/internal/indexer"
	"github.com/dshills/refscope-mcp/internal/refs"
	"github.com/dshills/refscope-mcp/internal/storage"
	"github.com/dshills/refscope-mcp/pkg/types"
)

// ReferencesTestSuite covers the full search pipeline: index fixtures,
// then query through the reference engine.
type ReferencesTestSuite struct {
	suite.Suite
	storage     storage.Storage
	indexer     *indexer.Indexer
	engine      *refs.Engine
	fixturesDir string
	ctx         context.Context
}

// SetupSuite runs once before all tests
func (s *ReferencesTestSuite) SetupSuite() {
	s.ctx = context.Background()

	wd, err := os.Getwd()
	s.Require().NoError(err)
	s.fixturesDir = filepath.Join(filepath.Dir(wd), "testdata", "fixtures")
}

// SetupTest indexes both fixture projects into fresh storage
func (s *ReferencesTestSuite) SetupTest() {
	store, err := storage.NewSQLiteStorage(":memory:")
	s.Require().NoError(err)
	s.storage = store
	s.indexer = indexer.New(store, nil)
	s.engine = refs.NewEngine(store, nil)

	_, err = s.indexer.IndexRepository(s.ctx, "billing", filepath.Join(s.fixturesDir, "rust-project"), nil, false)
	s.Require().NoError(err)
	_, err = s.indexer.IndexRepository(s.ctx, "gatekeeper", filepath.Join(s.fixturesDir, "ts-project"), nil, false)
	s.Require().NoError(err)
}

// TearDownTest runs after each test
func (s *ReferencesTestSuite) TearDownTest() {
	if s.storage != nil {
		_ = s.storage.Close()
	}
}

// find parses raw tool arguments and runs the search, failing the test on
// any error.
func (s *ReferencesTestSuite) find(args map[string]interface{}) string {
	q, err := refs.ParseQuery(args)
	s.Require().NoError(err)
	report, err := s.engine.FindReferences(s.ctx, q)
	s.Require().NoError(err)
	return report
}

// TestRankingAndCounts verifies classification-driven ordering in the
// rendered report
func (s *ReferencesTestSuite) TestRankingAndCounts() {
	report := s.find(map[string]interface{}{
		"session_id": "billing",
		"symbol":     "calculate_invoice",
	})

	s.Contains(report, "# References to `calculate_invoice`")
	s.Contains(report, "Found 6 references (showing 6)")
	s.Contains(report, "## tests/billing_test.rs:5")
	s.Contains(report, "## src/main.rs:6")
	s.Contains(report, "## README.md:3")
	s.NotContains(report, "## src/billing.rs")
	s.Contains(report, "Confidence: 0.90")
	s.Contains(report, "Confidence: 0.45")

	// The call inside the test file carries the boost, so it ranks ahead
	// of the production call
	testCall := strings.Index(report, "## tests/billing_test.rs:5")
	prodCall := strings.Index(report, "## src/main.rs:6")
	s.Less(testCall, prodCall)
}

// TestIncludeDefinition verifies declarations appear only on request
func (s *ReferencesTestSuite) TestIncludeDefinition() {
	report := s.find(map[string]interface{}{
		"session_id":         "billing",
		"symbol":             "calculate_invoice",
		"include_definition": true,
	})

	s.Contains(report, "Found 7 references (showing 7)")
	s.Contains(report, "## src/billing.rs:4")
	s.Contains(report, "```rust")
	s.Contains(report, "pub fn calculate_invoice(items: &[LineItem]) -> u64 {")
}

// TestDefinedInExcludesFile verifies the defined_in file is dropped from
// scanning, with or without a leading ./
func (s *ReferencesTestSuite) TestDefinedInExcludesFile() {
	report := s.find(map[string]interface{}{
		"session_id": "billing",
		"symbol":     "calculate_invoice",
		"defined_in": "src/main.rs",
	})
	s.Contains(report, "Found 4 references (showing 4)")
	s.NotContains(report, "## src/main.rs")

	dotSlash := s.find(map[string]interface{}{
		"session_id": "billing",
		"symbol":     "calculate_invoice",
		"defined_in": "./src/main.rs",
	})
	s.Equal(report, dotSlash)
}

// TestSymbolTypeFilter verifies non-callable symbol types drop call-shaped
// matches but keep mentions
func (s *ReferencesTestSuite) TestSymbolTypeFilter() {
	anyType := s.find(map[string]interface{}{
		"session_id": "gatekeeper",
		"symbol":     "validateToken",
	})
	s.Contains(anyType, "Found 7 references (showing 7)")

	typeOnly := s.find(map[string]interface{}{
		"session_id":  "gatekeeper",
		"symbol":      "validateToken",
		"symbol_type": "type",
	})
	s.Contains(typeOnly, "Found 5 references (showing 5)")
	s.NotContains(typeOnly, "## src/server.ts:4")
	s.Contains(typeOnly, "## src/server.ts:1")
	s.Contains(typeOnly, "## docs/usage.md:3")
}

// TestContextWindow verifies excerpt sizing and boundary clamping
func (s *ReferencesTestSuite) TestContextWindow() {
	tight := s.find(map[string]interface{}{
		"session_id":    "billing",
		"symbol":        "calculate_invoice",
		"context_lines": 0,
	})
	s.Contains(tight, "```rust\n    let total = calculate_invoice(&items);\n```")
	s.NotContains(tight, "# billing-core")

	wide := s.find(map[string]interface{}{
		"session_id":    "billing",
		"symbol":        "calculate_invoice",
		"context_lines": 10,
	})
	s.Contains(wide, "# billing-core")
}

// TestMaxResultsTruncation verifies the total is reported alongside the
// truncated list
func (s *ReferencesTestSuite) TestMaxResultsTruncation() {
	report := s.find(map[string]interface{}{
		"session_id":  "billing",
		"symbol":      "calculate_invoice",
		"max_results": 2,
	})
	s.Contains(report, "Found 6 references (showing 2)")
	s.Equal(2, strings.Count(report, "\n## "))
}

// TestNoMatches verifies an empty result is a report, not an error
func (s *ReferencesTestSuite) TestNoMatches() {
	report := s.find(map[string]interface{}{
		"session_id": "billing",
		"symbol":     "frobnicate_widget",
	})
	s.Contains(report, "No references found for `frobnicate_widget`")
	s.Contains(report, "Session indexed:")
}

// TestUnknownSession verifies lookups against a session that was never
// indexed
func (s *ReferencesTestSuite) TestUnknownSession() {
	q, err := refs.ParseQuery(map[string]interface{}{
		"session_id": "ghost",
		"symbol":     "calculate_invoice",
	})
	s.Require().NoError(err)

	_, err = s.engine.FindReferences(s.ctx, q)
	s.ErrorIs(err, types.ErrSessionNotFound)
}

// TestInvalidArguments verifies parameter validation at the parse boundary
func (s *ReferencesTestSuite) TestInvalidArguments() {
	_, err := refs.ParseQuery(map[string]interface{}{
		"session_id": "billing",
		"symbol":     " x ",
	})
	s.ErrorIs(err, types.ErrInvalidParams)

	_, err = refs.ParseQuery(map[string]interface{}{
		"session_id":    "billing",
		"symbol":        "calculate_invoice",
		"context_lines": 11,
	})
	s.ErrorIs(err, types.ErrInvalidParams)

	_, err = refs.ParseQuery(map[string]interface{}{
		"session_id":  "billing",
		"symbol":      "calculate_invoice",
		"max_results": 0,
	})
	s.ErrorIs(err, types.ErrInvalidParams)
}

// TestReindexRefreshesResults verifies the engine picks up a new snapshot
// after the session is re-indexed
func (s *ReferencesTestSuite) TestReindexRefreshesResults() {
	dir := s.T().TempDir()
	path := filepath.Join(dir, "main.go")
	s.Require().NoError(os.WriteFile(path, []byte("package main\n\nfunc main() {\n\tclaimVoucher()\n}\n"), 0644))

	_, err := s.indexer.IndexRepository(s.ctx, "scratch", dir, nil, false)
	s.Require().NoError(err)

	first := s.find(map[string]interface{}{
		"session_id": "scratch",
		"symbol":     "claimVoucher",
	})
	s.Contains(first, "Found 1 references (showing 1)")

	s.Require().NoError(os.WriteFile(path, []byte("package main\n\nfunc main() {\n\tclaimVoucher()\n\tclaimVoucher()\n}\n"), 0644))
	_, err = s.indexer.ReindexSession(s.ctx, "scratch")
	s.Require().NoError(err)

	second := s.find(map[string]interface{}{
		"session_id": "scratch",
		"symbol":     "claimVoucher",
	})
	s.Contains(second, "Found 2 references (showing 2)")
}

// TestReferencesTestSuite runs the reference search test suite
func TestReferencesTestSuite(t *testing.T) {
	suite.Run(t, new(ReferencesTestSuite))
}
