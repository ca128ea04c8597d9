package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"docrag/internal/util"
	"docrag/pkg/ai"
	"docrag/pkg/common"
	"docrag/pkg/logger"
	"docrag/pkg/store"
)

// mirrorRetries bounds attempts for best-effort mirror writes.
const mirrorRetries = 3

// Engine maintains per-user embedding indices and serves semantic retrieval
// with an optional exact reranking stage. Indices load lazily from durable
// storage and persist after every mutating operation.
type Engine struct {
	embedder ai.EmbeddingClient
	reranker ai.Reranker
	store    store.UserStore
	mirror   store.Mirror

	locks *util.KeyedMutex

	mu      sync.Mutex
	indices map[string]*userIndex
}

// NewEngineParams configures an Engine. Reranker and Mirror may be nil.
type NewEngineParams struct {
	Embedder ai.EmbeddingClient
	Reranker ai.Reranker
	Store    store.UserStore
	Mirror   store.Mirror
}

// NewEngine creates an Engine with empty in-memory state.
func NewEngine(params NewEngineParams) *Engine {
	return &Engine{
		embedder: params.Embedder,
		reranker: params.Reranker,
		store:    params.Store,
		mirror:   params.Mirror,
		locks:    util.NewKeyedMutex(),
		indices:  make(map[string]*userIndex),
	}
}

// Store chunks each record, embeds the chunks and appends them to the
// user's index. Trivial records are skipped. The index is persisted once
// after the batch; mirror replication is best-effort.
func (e *Engine) Store(ctx context.Context, records []common.Record, fileID string, userID string) (int, error) {
	if e.embedder == nil {
		return 0, fmt.Errorf("rag store: no embedding client configured")
	}

	var chunks []common.Chunk
	for _, record := range records {
		content := record.Content()
		if common.IsTrivialContent(content) {
			continue
		}
		for _, text := range SplitContent(content) {
			metadata := record.Clone()
			metadata["file_id"] = fileID
			chunks = append(chunks, common.Chunk{Text: text, Metadata: metadata})
		}
	}
	if len(chunks) == 0 {
		logger.Warn("no indexable content", "file_id", fileID, "user_id", userID)
		return 0, nil
	}

	inputs := make([][]byte, len(chunks))
	for i, chunk := range chunks {
		inputs[i] = []byte(chunk.Text)
	}
	vectors, err := e.embedder.GenerateEmbeddings(ctx, inputs)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}

	unlock := e.locks.Lock(userID)
	defer unlock()

	idx := e.getOrLoad(ctx, userID)
	if idx == nil {
		idx = &userIndex{}
		e.setIndex(userID, idx)
	}
	if err := idx.appendPairs(vectors, chunks); err != nil {
		return 0, err
	}

	if err := e.persist(ctx, userID, idx); err != nil {
		return 0, err
	}
	e.replicateChunks(ctx, userID, chunks, vectors)

	logger.Info("chunks indexed", "user_id", userID, "file_id", fileID, "chunks", len(chunks))
	return len(chunks), nil
}

// Search embeds the query, retrieves an over-fetched candidate set by L2
// distance and reranks it when a reranker is configured. A user with no
// index, or a failed query embedding, yields an empty slice rather than an
// error: retrieval degrades, never aborts.
func (e *Engine) Search(ctx context.Context, query string, topK int, userID string) []common.SearchResult {
	if topK <= 0 || e.embedder == nil {
		return nil
	}

	unlock := e.locks.RLock(userID)
	defer unlock()

	idx := e.getOrLoad(ctx, userID)
	if idx == nil || len(idx.Vectors) == 0 {
		return nil
	}

	queryVec, err := e.embedder.GenerateEmbedding(ctx, []byte(query))
	if err != nil {
		logger.Warn("query embedding failed", "user_id", userID, "error", err)
		return nil
	}

	candidates := 2 * topK
	if candidates > len(idx.Vectors) {
		candidates = len(idx.Vectors)
	}
	hits := idx.search(queryVec, candidates)
	if len(hits) == 0 {
		return nil
	}

	results := make([]common.SearchResult, len(hits))
	for i, hit := range hits {
		chunk := idx.Chunks[hit.ordinal]
		results[i] = common.SearchResult{
			Content:  chunk.Text,
			Score:    1.0 / (1.0 + hit.distance),
			Source:   common.SourceVector,
			Metadata: chunk.Metadata,
		}
	}

	e.rerank(ctx, query, results)

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// rerank replaces similarity scores with exact pairwise relevance scores in
// place. Any reranker failure leaves the similarity ordering untouched.
func (e *Engine) rerank(ctx context.Context, query string, results []common.SearchResult) {
	if e.reranker == nil || len(results) == 0 {
		return
	}

	passages := make([]string, len(results))
	for i, r := range results {
		passages[i] = r.Content
	}
	scores, err := e.reranker.RerankPassages(ctx, query, passages)
	if err != nil || len(scores) != len(results) {
		logger.Warn("rerank failed, keeping similarity order", "error", err)
		return
	}
	for i := range results {
		results[i].Score = scores[i]
	}
}

// Documents returns the chunk texts for one user in index order, for lexical
// indexing over the same corpus the vector index serves.
func (e *Engine) Documents(ctx context.Context, userID string) []string {
	unlock := e.locks.RLock(userID)
	defer unlock()

	idx := e.getOrLoad(ctx, userID)
	if idx == nil {
		return nil
	}
	out := make([]string, len(idx.Chunks))
	for i, chunk := range idx.Chunks {
		out[i] = chunk.Text
	}
	return out
}

// Chunks returns a snapshot of the user's chunks in index order.
func (e *Engine) Chunks(ctx context.Context, userID string) []common.Chunk {
	unlock := e.locks.RLock(userID)
	defer unlock()

	idx := e.getOrLoad(ctx, userID)
	if idx == nil {
		return nil
	}
	out := make([]common.Chunk, len(idx.Chunks))
	copy(out, idx.Chunks)
	return out
}

// DeleteUser removes all index state for a user.
func (e *Engine) DeleteUser(ctx context.Context, userID string) error {
	unlock := e.locks.Lock(userID)
	defer unlock()

	e.dropIndex(userID)
	if err := e.store.DeleteIndex(ctx, userID); err != nil && err != store.ErrNotFound {
		return err
	}
	logger.Info("index deleted", "user_id", userID)
	return nil
}

// DeleteFile removes every chunk ingested under fileID. An emptied index is
// deleted outright so the user returns to the absent state.
func (e *Engine) DeleteFile(ctx context.Context, userID string, fileID string) (int, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()

	idx := e.getOrLoad(ctx, userID)
	if idx == nil {
		return 0, nil
	}

	removed := idx.removeByFile(fileID)
	if removed == 0 {
		return 0, nil
	}

	if len(idx.Chunks) == 0 {
		e.dropIndex(userID)
		if err := e.store.DeleteIndex(ctx, userID); err != nil && err != store.ErrNotFound {
			return removed, err
		}
		return removed, nil
	}

	if err := e.persist(ctx, userID, idx); err != nil {
		return removed, err
	}
	logger.Info("file removed from index", "user_id", userID, "file_id", fileID, "chunks_removed", removed)
	return removed, nil
}

func (e *Engine) getIndex(userID string) *userIndex {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.indices[userID]
}

func (e *Engine) setIndex(userID string, idx *userIndex) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.indices[userID] = idx
}

func (e *Engine) dropIndex(userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.indices, userID)
}

func (e *Engine) getOrLoad(ctx context.Context, userID string) *userIndex {
	if idx := e.getIndex(userID); idx != nil {
		return idx
	}

	blob, err := e.store.LoadIndex(ctx, userID)
	if err != nil {
		if err != store.ErrNotFound {
			logger.Warn("failed to load index", "user_id", userID, "error", err)
		}
		return nil
	}

	idx := &userIndex{}
	if err := json.Unmarshal(blob, idx); err != nil {
		logger.Error("corrupt index blob", "user_id", userID, "error", err)
		return nil
	}
	e.setIndex(userID, idx)
	return idx
}

func (e *Engine) persist(ctx context.Context, userID string, idx *userIndex) error {
	blob, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	if err := e.store.SaveIndex(ctx, userID, blob); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	return nil
}

func (e *Engine) replicateChunks(ctx context.Context, userID string, chunks []common.Chunk, vectors [][]float32) {
	if e.mirror == nil {
		return
	}

	rows := make([]store.MirrorChunk, len(chunks))
	for i, chunk := range chunks {
		rows[i] = store.MirrorChunk{
			Content:   chunk.Text,
			Chunk:     chunk.Text,
			Embedding: vectors[i],
		}
	}
	err := util.RetryErrWithContext(ctx, mirrorRetries, func(ctx context.Context) error {
		return e.mirror.UpsertChunks(ctx, userID, rows)
	})
	if err != nil {
		logger.Warn("mirror chunk upsert failed", "user_id", userID, "error", err)
	}
}
