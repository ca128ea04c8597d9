package query

import (
	"context"
	"fmt"
	"time"

	"docrag/pkg/ai"
	"docrag/pkg/logger"
)

// Query type classifications produced by the analyzer.
const (
	TypeCount        = "count"
	TypeFilter       = "filter"
	TypeList         = "list"
	TypeSearch       = "search"
	TypeSimpleSearch = "simple_search"
)

// Analysis is the classified shape of a user query.
type Analysis struct {
	Type        string   `json:"type"`
	Intent      string   `json:"intent"`
	Entities    []string `json:"entities"`
	TimeFilter  string   `json:"time_filter"`
	Aggregation string   `json:"aggregation"`
}

const analyzeTimeoutSec = 15

// Analyzer classifies queries with a language model so structured questions
// (counts, lists) can bypass retrieval. Without a model, or on any model
// failure, every query degrades to a simple search.
type Analyzer struct {
	client ai.CompletionClient
}

// NewAnalyzer creates an Analyzer. client may be nil.
func NewAnalyzer(client ai.CompletionClient) *Analyzer {
	return &Analyzer{client: client}
}

func fallbackAnalysis() Analysis {
	return Analysis{Type: TypeSimpleSearch, Intent: "search"}
}

// Analyze classifies the query. The result always carries a usable Type;
// failures never propagate to the caller.
func (a *Analyzer) Analyze(ctx context.Context, query string) Analysis {
	if a.client == nil {
		return fallbackAnalysis()
	}

	ctx, cancel := context.WithTimeout(ctx, analyzeTimeoutSec*time.Second)
	defer cancel()

	raw, err := a.client.GenerateCompletion(
		ctx,
		fmt.Sprintf(ai.AnalyzePrompt, query),
		ai.WithSystemPrompts(ai.AnalyzeSystemPrompt),
		ai.WithTemperature(0),
	)
	if err != nil {
		logger.Warn("query analysis failed", "error", err)
		return fallbackAnalysis()
	}

	var analysis Analysis
	if err := ai.UnmarshalFlexible(ai.ExtractJSONBlock(raw), &analysis); err != nil {
		logger.Warn("query analysis returned unparseable output", "error", err)
		return fallbackAnalysis()
	}
	if analysis.Type == "" {
		return fallbackAnalysis()
	}

	logger.Debug("query analyzed", "type", analysis.Type, "entities", analysis.Entities, "time_filter", analysis.TimeFilter)
	return analysis
}
