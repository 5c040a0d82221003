package refs

import (
	"fmt"
	"strings"

	"github.com/dshills/refscope-mcp/pkg/types"
)

// Parameter limits and defaults
const (
	MinSymbolLen = 2
	MaxSymbolLen = 200

	MinContextLines     = 0
	MaxContextLines     = 10
	DefaultContextLines = 2

	MinMaxResults     = 1
	MaxMaxResults     = 200
	DefaultMaxResults = 50
)

// Query is a validated reference search request. Build one with
// ParseQuery; it is immutable afterwards.
type Query struct {
	SessionID         string
	Symbol            string
	SymbolType        types.SymbolType
	DefinedIn         string
	IncludeDefinition bool
	ContextLines      int
	MaxResults        int
}

// ParseQuery builds a Query from raw tool arguments, applying defaults
// and validating every field. All failures wrap types.ErrInvalidParams.
func ParseQuery(args map[string]interface{}) (Query, error) {
	symbol, _ := args["symbol"].(string)
	sessionID, _ := args["session_id"].(string)

	q := Query{
		SessionID:         sessionID,
		Symbol:            strings.TrimSpace(symbol),
		SymbolType:        types.SymbolType(getStringDefault(args, "symbol_type", string(types.SymbolTypeAny))),
		DefinedIn:         getStringDefault(args, "defined_in", ""),
		IncludeDefinition: getBoolDefault(args, "include_definition", false),
		ContextLines:      getIntDefault(args, "context_lines", DefaultContextLines),
		MaxResults:        getIntDefault(args, "max_results", DefaultMaxResults),
	}

	if err := q.Validate(); err != nil {
		return Query{}, err
	}
	return q, nil
}

// Validate checks every parameter rule independently. The symbol length
// rule applies to the whitespace-trimmed symbol, so an all-whitespace
// symbol fails the same way as an empty one. Session existence is not
// checked here; an unknown session is a lookup failure, not a parameter
// failure.
func (q Query) Validate() error {
	symbolLen := len(strings.TrimSpace(q.Symbol))
	if symbolLen < MinSymbolLen {
		return fmt.Errorf("%w: symbol must be at least %d characters", types.ErrInvalidParams, MinSymbolLen)
	}
	if symbolLen > MaxSymbolLen {
		return fmt.Errorf("%w: symbol must be at most %d characters", types.ErrInvalidParams, MaxSymbolLen)
	}
	if q.SessionID == "" {
		return fmt.Errorf("%w: session_id is required", types.ErrInvalidParams)
	}
	if !q.SymbolType.Valid() {
		return fmt.Errorf("%w: symbol_type must be one of: function, type, variable, constant, any", types.ErrInvalidParams)
	}
	if q.ContextLines < MinContextLines || q.ContextLines > MaxContextLines {
		return fmt.Errorf("%w: context_lines must be between %d and %d", types.ErrInvalidParams, MinContextLines, MaxContextLines)
	}
	if q.MaxResults < MinMaxResults || q.MaxResults > MaxMaxResults {
		return fmt.Errorf("%w: max_results must be between %d and %d", types.ErrInvalidParams, MinMaxResults, MaxMaxResults)
	}
	return nil
}

func getStringDefault(args map[string]interface{}, key, defaultValue string) string {
	if val, ok := args[key].(string); ok && val != "" {
		return val
	}
	return defaultValue
}

func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	switch val := args[key].(type) {
	case float64:
		return int(val)
	case int:
		return val
	}
	return defaultValue
}
