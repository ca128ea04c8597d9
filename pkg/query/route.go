package query

import (
	"context"

	"docrag/pkg/common"
	"docrag/pkg/graph"
	"docrag/pkg/logger"
	"docrag/pkg/search"
)

// defaultEntityType is assumed when a structured query names no entity
// type; the dominant corpus is deal records.
const defaultEntityType = "deals"

// Response is the routed answer to one query. Structured is set for count
// and list queries; Results and Graph are set for retrieval queries.
type Response struct {
	QueryType  string                `json:"query_type"`
	Structured *Result               `json:"structured,omitempty"`
	Results    []common.SearchResult `json:"results,omitempty"`
	Graph      *common.GraphResult   `json:"graph,omitempty"`
}

// Router classifies each incoming query and dispatches it to the structured
// engine or the retrieval stack.
type Router struct {
	analyzer   *Analyzer
	structured *StructuredEngine
	hybrid     *search.Engine
	graph      *graph.Builder
}

// NewRouterParams configures a Router.
type NewRouterParams struct {
	Analyzer   *Analyzer
	Structured *StructuredEngine
	Hybrid     *search.Engine
	Graph      *graph.Builder
}

// NewRouter creates a Router.
func NewRouter(params NewRouterParams) *Router {
	return &Router{
		analyzer:   params.Analyzer,
		structured: params.Structured,
		hybrid:     params.Hybrid,
		graph:      params.Graph,
	}
}

// Ask answers a query for one user. Count and list queries are answered
// exactly from the graph; everything else runs hybrid retrieval plus a
// graph neighborhood query.
func (r *Router) Ask(ctx context.Context, query string, topK int, userID string) Response {
	analysis := r.analyzer.Analyze(ctx, query)

	entityType := defaultEntityType
	if len(analysis.Entities) > 0 && analysis.Entities[0] != "" {
		entityType = analysis.Entities[0]
	}

	switch analysis.Type {
	case TypeCount:
		result := r.structured.Count(ctx, userID, entityType, analysis.TimeFilter)
		return Response{QueryType: result.QueryType, Structured: &result}
	case TypeList:
		result := r.structured.List(ctx, userID, entityType, analysis.TimeFilter)
		return Response{QueryType: result.QueryType, Structured: &result}
	}

	results := r.hybrid.HybridSearch(ctx, query, topK, userID)
	graphResult := r.graph.Query(ctx, query, userID)

	logger.Debug("query routed to retrieval",
		"user_id", userID,
		"type", analysis.Type,
		"results", len(results),
		"graph_nodes", len(graphResult.Nodes),
	)

	return Response{
		QueryType: analysis.Type,
		Results:   results,
		Graph:     &graphResult,
	}
}
