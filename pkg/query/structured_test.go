package query

import (
	"context"
	"sync"
	"testing"

	"docrag/pkg/common"
	"docrag/pkg/extract"
	"docrag/pkg/graph"
	"docrag/pkg/store"
)

type memStore struct {
	mu      sync.Mutex
	graphs  map[string][]byte
	indices map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{graphs: make(map[string][]byte), indices: make(map[string][]byte)}
}

func (s *memStore) LoadGraph(ctx context.Context, userID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.graphs[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return blob, nil
}

func (s *memStore) SaveGraph(ctx context.Context, userID string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graphs[userID] = blob
	return nil
}

func (s *memStore) DeleteGraph(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.graphs, userID)
	return nil
}

func (s *memStore) LoadIndex(ctx context.Context, userID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.indices[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return blob, nil
}

func (s *memStore) SaveIndex(ctx context.Context, userID string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indices[userID] = blob
	return nil
}

func (s *memStore) DeleteIndex(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indices, userID)
	return nil
}

// dealStrategy returns a canned extraction per record content.
type dealStrategy struct {
	results map[string]extract.Result
}

func (s *dealStrategy) Name() string { return "deal" }

func (s *dealStrategy) Extract(ctx context.Context, content string, docTypeHint string) (extract.Result, error) {
	if res, ok := s.results[content]; ok {
		return res, nil
	}
	return extract.Result{DocType: docTypeHint}, nil
}

func dealResult(text, entityType, value, docType string) extract.Result {
	return extract.Result{
		Entities: []common.Entity{{Text: text, Type: entityType, Value: value}},
		DocType:  docType,
	}
}

func dealGraph(t *testing.T) *graph.Builder {
	t.Helper()
	strategy := &dealStrategy{results: map[string]extract.Result{
		"r1": dealResult("Deal 101", common.TypeID, "101", "deals"),
		"r2": dealResult("Deal 102", common.TypeID, "102", "deals"),
		"r3": dealResult("Deal 103", common.TypeID, "103", "deals"),
		"r4": dealResult("Deal 103 addendum", common.TypeValue, "103", "deals"),
		"r5": dealResult("Invoice 900", common.TypeValue, "900", "invoices"),
	}}
	b := graph.NewBuilder(graph.NewBuilderParams{
		Chain: extract.NewChain(strategy),
		Store: newMemStore(),
	})

	records := []common.Record{
		{"content": "r1"},
		{"content": "r2"},
		{"content": "r3"},
		{"content": "r4"},
		{"content": "r5", "created_at": "2024-01-15"},
	}
	if _, err := b.Build(context.Background(), records, "f1", "u1", ""); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return b
}

func TestStructuredEngine_CountDistinctIDs(t *testing.T) {
	engine := NewStructuredEngine(dealGraph(t))

	// four nodes mention "deal" but only three distinct record ids
	res := engine.Count(context.Background(), "u1", "deals", "")
	if res.Count != 3 {
		t.Fatalf("count = %d, want 3 distinct ids", res.Count)
	}
	if res.QueryType != TypeCount {
		t.Fatalf("query type = %q, want %q", res.QueryType, TypeCount)
	}
}

func TestStructuredEngine_CountSingularForm(t *testing.T) {
	engine := NewStructuredEngine(dealGraph(t))
	res := engine.Count(context.Background(), "u1", "deal", "")
	if res.Count != 3 {
		t.Fatalf("count = %d, want singular form to match too", res.Count)
	}
}

func TestStructuredEngine_CountByDocType(t *testing.T) {
	engine := NewStructuredEngine(dealGraph(t))

	// "Invoice 900" does not mention deals in its text, but its doc_type does
	res := engine.Count(context.Background(), "u1", "invoices", "")
	if res.Count != 1 {
		t.Fatalf("count = %d, want 1 invoice", res.Count)
	}
}

func TestStructuredEngine_TimeFilterRequiresCreatedAt(t *testing.T) {
	engine := NewStructuredEngine(dealGraph(t))

	// only r5 carries created_at metadata
	res := engine.Count(context.Background(), "u1", "deals", "yesterday")
	if res.Count != 0 {
		t.Fatalf("count = %d, want 0 (no deal node has created_at)", res.Count)
	}

	res = engine.Count(context.Background(), "u1", "invoices", "yesterday")
	if res.Count != 1 {
		t.Fatalf("count = %d, want 1", res.Count)
	}
}

func TestStructuredEngine_TimeFilterKeywordMatch(t *testing.T) {
	engine := NewStructuredEngine(dealGraph(t))

	// the bucket keyword sits inside a longer phrase and must still engage
	res := engine.Count(context.Background(), "u1", "deals", "from last week")
	if res.Count != 0 {
		t.Fatalf("count = %d, want 0 (no deal node has created_at)", res.Count)
	}

	res = engine.Count(context.Background(), "u1", "invoices", "in the last month")
	if res.Count != 1 {
		t.Fatalf("count = %d, want 1", res.Count)
	}
}

func TestStructuredEngine_CountIgnoresEntityValues(t *testing.T) {
	strategy := &dealStrategy{results: map[string]extract.Result{
		"r1": dealResult("Deal 101", common.TypeID, "101", "deals"),
		"r2": dealResult("deal amount", common.TypeMoney, "500", "deals"),
	}}
	b := graph.NewBuilder(graph.NewBuilderParams{
		Chain: extract.NewChain(strategy),
		Store: newMemStore(),
	})
	records := []common.Record{{"content": "r1"}, {"content": "r2"}}
	if _, err := b.Build(context.Background(), records, "f1", "u1", ""); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// the normalized amount "500" must not count as a record identifier
	res := NewStructuredEngine(b).Count(context.Background(), "u1", "deals", "")
	if res.Count != 1 {
		t.Fatalf("count = %d, want 1 distinct id", res.Count)
	}
}

func TestStructuredEngine_List(t *testing.T) {
	engine := NewStructuredEngine(dealGraph(t))

	res := engine.List(context.Background(), "u1", "deals", "")
	if res.QueryType != TypeList {
		t.Fatalf("query type = %q, want %q", res.QueryType, TypeList)
	}
	// same record semantics as a count query: four nodes, three distinct ids
	if res.Count != 3 {
		t.Fatalf("count = %d, want 3 distinct ids", res.Count)
	}
	if len(res.Items) != 4 {
		t.Fatalf("items = %d, want 4", len(res.Items))
	}
	if res.Items[0].EntityText != "Deal 101" || res.Items[0].EntityValue != "101" {
		t.Fatalf("first item = %+v", res.Items[0])
	}
}

func TestStructuredEngine_ListCapsItems(t *testing.T) {
	strategy := &dealStrategy{results: map[string]extract.Result{}}
	var records []common.Record
	for i := 0; i < 15; i++ {
		content := string(rune('a' + i))
		strategy.results[content] = dealResult("deal "+content, common.TypeValue, content, "deals")
		records = append(records, common.Record{"content": content})
	}

	b := graph.NewBuilder(graph.NewBuilderParams{
		Chain: extract.NewChain(strategy),
		Store: newMemStore(),
	})
	if _, err := b.Build(context.Background(), records, "f1", "u1", ""); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	res := NewStructuredEngine(b).List(context.Background(), "u1", "deals", "")
	if res.Count != 15 {
		t.Fatalf("count = %d, want 15", res.Count)
	}
	if len(res.Items) != listLimit {
		t.Fatalf("items = %d, want cap %d", len(res.Items), listLimit)
	}
}

func TestStructuredEngine_EmptyUser(t *testing.T) {
	b := graph.NewBuilder(graph.NewBuilderParams{
		Chain: extract.NewChain(),
		Store: newMemStore(),
	})
	res := NewStructuredEngine(b).Count(context.Background(), "nobody", "deals", "")
	if res.Count != 0 {
		t.Fatalf("count = %d, want 0", res.Count)
	}
}
