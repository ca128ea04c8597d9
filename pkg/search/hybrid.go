package search

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"docrag/pkg/common"
	"docrag/pkg/graph"
	"docrag/pkg/logger"
	"docrag/pkg/rag"
)

// Weights are the fusion weights applied to each retrieval channel. Scores
// from different channels live on different scales; the weights encode the
// trust placed in each channel, not a calibration between them.
type Weights struct {
	BM25   float64
	Vector float64
	KG     float64
}

// DefaultWeights favors semantic retrieval, with lexical match second and
// graph hits as a supporting signal.
var DefaultWeights = Weights{BM25: 0.3, Vector: 0.5, KG: 0.2}

// Engine fuses lexical, vector and knowledge-graph retrieval into one ranked
// result list. The lexical index is rebuilt lazily per user and invalidated
// on ingestion and deletion.
type Engine struct {
	rag     *rag.Engine
	graph   *graph.Builder
	weights Weights

	mu      sync.Mutex
	lexical map[string]*lexicalCache
}

type lexicalCache struct {
	index  *bm25Index
	chunks []common.Chunk
}

// NewEngineParams configures a hybrid search Engine. Zero-valued Weights
// fall back to DefaultWeights.
type NewEngineParams struct {
	RAG     *rag.Engine
	Graph   *graph.Builder
	Weights Weights
}

// NewEngine creates a hybrid search engine.
func NewEngine(params NewEngineParams) *Engine {
	weights := params.Weights
	if weights == (Weights{}) {
		weights = DefaultWeights
	}
	return &Engine{
		rag:     params.RAG,
		graph:   params.Graph,
		weights: weights,
		lexical: make(map[string]*lexicalCache),
	}
}

// Invalidate drops the cached lexical index for a user. Call after any
// ingestion or deletion that changes the user's chunk corpus.
func (e *Engine) Invalidate(userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.lexical, userID)
}

// HybridSearch runs all three retrieval channels and returns the fused
// top-k. Channels that produce nothing contribute nothing; a user with no
// data gets an empty result.
func (e *Engine) HybridSearch(ctx context.Context, query string, topK int, userID string) []common.SearchResult {
	if topK <= 0 {
		return nil
	}

	results := make([]common.SearchResult, 0, 3*topK)
	results = append(results, e.lexicalResults(ctx, query, topK, userID)...)

	for _, r := range e.rag.Search(ctx, query, topK, userID) {
		r.Score *= e.weights.Vector
		results = append(results, r)
	}

	results = append(results, e.graphResults(ctx, query, topK, userID)...)

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}

	logger.Debug("hybrid search", "user_id", userID, "top_k", topK, "results", len(results))
	return results
}

func (e *Engine) lexicalResults(ctx context.Context, query string, topK int, userID string) []common.SearchResult {
	cache := e.getLexical(ctx, userID)
	if cache == nil {
		return nil
	}

	hits := cache.index.topN(query, topK)
	out := make([]common.SearchResult, 0, len(hits))
	for _, hit := range hits {
		chunk := cache.chunks[hit.ordinal]
		out = append(out, common.SearchResult{
			Content:  chunk.Text,
			Score:    hit.score * e.weights.BM25,
			Source:   common.SourceBM25,
			Metadata: chunk.Metadata,
		})
	}
	return out
}

// graphResults converts graph query nodes into results with a rank-decay
// score: the first node scores 1, descending linearly over the node list.
// Only the first topK nodes become fusion candidates, so deep graph hits
// cannot crowd out the other channels.
func (e *Engine) graphResults(ctx context.Context, query string, topK int, userID string) []common.SearchResult {
	graphResult := e.graph.Query(ctx, query, userID)
	if len(graphResult.Nodes) == 0 {
		return nil
	}

	total := len(graphResult.Nodes)
	nodes := graphResult.Nodes
	if len(nodes) > topK {
		nodes = nodes[:topK]
	}

	out := make([]common.SearchResult, 0, len(nodes))
	for i, node := range nodes {
		decay := 1.0 - float64(i)/float64(total)
		out = append(out, common.SearchResult{
			Content: fmt.Sprintf("%s (%s): %s", node.EntityText, node.EntityType, node.EntityValue),
			Score:   decay * e.weights.KG,
			Source:  common.SourceKG,
		})
	}
	return out
}

func (e *Engine) getLexical(ctx context.Context, userID string) *lexicalCache {
	e.mu.Lock()
	if cache, ok := e.lexical[userID]; ok {
		e.mu.Unlock()
		return cache
	}
	e.mu.Unlock()

	chunks := e.rag.Chunks(ctx, userID)
	if len(chunks) == 0 {
		return nil
	}

	documents := make([]string, len(chunks))
	for i, chunk := range chunks {
		documents[i] = chunk.Text
	}
	cache := &lexicalCache{index: newBM25Index(documents), chunks: chunks}

	e.mu.Lock()
	e.lexical[userID] = cache
	e.mu.Unlock()
	return cache
}
