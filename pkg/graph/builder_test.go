package graph

import (
	"context"
	"sync"
	"testing"

	"docrag/pkg/common"
	"docrag/pkg/extract"
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

// fixedStrategy returns a canned result per content string.
type fixedStrategy struct {
	results map[string]extract.Result
}

func (s *fixedStrategy) Name() string { return "fixed" }

func (s *fixedStrategy) Extract(ctx context.Context, content string, docTypeHint string) (extract.Result, error) {
	if res, ok := s.results[content]; ok {
		return res, nil
	}
	return extract.Result{DocType: docTypeHint}, nil
}

func patternBuilder(s store.UserStore) *Builder {
	return NewBuilder(NewBuilderParams{
		Chain: extract.NewChain(extract.NewPatternStrategy()),
		Store: s,
	})
}

func dealRecord(id, client, amount, status string) common.Record {
	return common.Record{
		"content": "Deal ID: " + id + "\nClient: " + client + "\nAmount: " + amount + "\nStatus: " + status,
	}
}

func TestBuilder_BuildDealRecord(t *testing.T) {
	ctx := context.Background()
	mem := newMemStore()
	b := patternBuilder(mem)

	records := []common.Record{dealRecord("101", "Alpha Co", "$5,000", "Closed")}
	res, err := b.Build(ctx, records, "f1", "u1", "deals")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if res.NodesAdded != 4 {
		t.Fatalf("nodes added = %d, want 4", res.NodesAdded)
	}
	if res.DocType != extract.DocTypeStructured {
		t.Fatalf("doc type = %q, want %q", res.DocType, extract.DocTypeStructured)
	}

	g := b.getGraph("u1")
	if g == nil {
		t.Fatalf("no in-memory graph after build")
	}

	money := g.Node(common.NodeKey("$5,000", common.TypeMoney))
	if money == nil {
		t.Fatalf("money node missing; keys = %v", g.Keys())
	}
	if money.EntityValue != "5000" {
		t.Fatalf("money value = %q, want normalized %q", money.EntityValue, "5000")
	}

	hub := common.NodeKey("101", common.TypeID)
	for _, tc := range []struct {
		target   string
		relation string
	}{
		{target: common.NodeKey("Alpha Co", common.TypeOrg), relation: "has_client"},
		{target: common.NodeKey("$5,000", common.TypeMoney), relation: "has_amount"},
		{target: common.NodeKey("Closed", common.TypeStatus), relation: "has_status"},
	} {
		rel, ok := g.Relation(hub, tc.target)
		if !ok || rel != tc.relation {
			t.Fatalf("edge %s -> %s = %q, %v; want %q", hub, tc.target, rel, ok, tc.relation)
		}
	}

	if _, ok := mem.graphs["u1"]; !ok {
		t.Fatalf("graph not persisted after build")
	}
}

func TestBuilder_MoneyIdempotence(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "$5,000.00", want: "5000"},
		{input: "5000.00", want: "5000"},
		{input: "$1,234.56", want: "1234.56"},
		{input: "about five grand", want: "about five grand"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeMoney(tt.input); got != tt.want {
				t.Fatalf("NormalizeMoney(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestBuilder_SkipsTrivialRecords(t *testing.T) {
	ctx := context.Background()
	b := patternBuilder(newMemStore())

	records := []common.Record{
		{"content": "nan"},
		{"content": ""},
		{"content": "None"},
		dealRecord("102", "Beta Inc", "$750", "Open"),
	}
	res, err := b.Build(ctx, records, "f1", "u1", "deals")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if res.SkippedRecords != 3 {
		t.Fatalf("skipped = %d, want 3", res.SkippedRecords)
	}
	if res.NodesAdded != 4 {
		t.Fatalf("nodes added = %d, want 4", res.NodesAdded)
	}
}

func TestBuilder_HubFallback(t *testing.T) {
	ctx := context.Background()
	content := "acme quarterly summary"
	strategy := &fixedStrategy{results: map[string]extract.Result{
		content: {
			Entities: []common.Entity{
				{Text: "Acme", Type: common.TypeOrg, Value: "Acme"},
				{Text: "2024-01-15", Type: common.TypeDate, Value: "2024-01-15"},
				{Text: "5000", Type: common.TypeMoney, Value: "5000"},
			},
		},
	}}
	b := NewBuilder(NewBuilderParams{
		Chain: extract.NewChain(strategy),
		Store: newMemStore(),
	})

	_, err := b.Build(ctx, []common.Record{{"content": content}}, "f1", "u1", "")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	g := b.getGraph("u1")
	hub := common.NodeKey("Acme", common.TypeOrg)
	for _, other := range []string{
		common.NodeKey("2024-01-15", common.TypeDate),
		common.NodeKey("5000", common.TypeMoney),
	} {
		rel, ok := g.Relation(hub, other)
		if !ok || rel != "related_to" {
			t.Fatalf("fallback edge %s -> %s = %q, %v; want related_to", hub, other, rel, ok)
		}
	}
	if g.EdgeCount() != 2 {
		t.Fatalf("edge count = %d, want star with 2 edges", g.EdgeCount())
	}
}

func TestBuilder_SynthesizesMissingTarget(t *testing.T) {
	ctx := context.Background()
	content := "deal 103 closed for 9000"
	strategy := &fixedStrategy{results: map[string]extract.Result{
		content: {
			Entities: []common.Entity{{Text: "103", Type: common.TypeID, Value: "103"}},
			Relations: []common.Relation{
				{Source: "103", Target: "9000", Relation: "has_amount"},
			},
		},
	}}
	b := NewBuilder(NewBuilderParams{
		Chain: extract.NewChain(strategy),
		Store: newMemStore(),
	})

	if _, err := b.Build(ctx, []common.Record{{"content": content}}, "f1", "u1", ""); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	g := b.getGraph("u1")
	target := g.Node(common.NodeKey("9000", common.TypeMoney))
	if target == nil {
		t.Fatalf("missing relation target was not synthesized; keys = %v", g.Keys())
	}
	rel, ok := g.Relation(common.NodeKey("103", common.TypeID), common.NodeKey("9000", common.TypeMoney))
	if !ok || rel != "has_amount" {
		t.Fatalf("relation = %q, %v; want has_amount", rel, ok)
	}
}

func TestBuilder_QueryMatchesAndExpands(t *testing.T) {
	ctx := context.Background()
	mem := newMemStore()
	b := patternBuilder(mem)

	records := []common.Record{
		dealRecord("101", "Alpha Co", "$5,000", "Closed"),
		dealRecord("102", "Beta Inc", "$750", "Open"),
	}
	if _, err := b.Build(ctx, records, "f1", "u1", "deals"); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// query with an extractable entity matching only Alpha's record
	res := b.Query(ctx, "Client: Alpha Co", "u1")
	if len(res.Nodes) == 0 {
		t.Fatalf("query returned no nodes")
	}

	foundAlpha, foundBeta := false, false
	for _, node := range res.Nodes {
		switch node.EntityText {
		case "Alpha Co":
			foundAlpha = true
		case "Beta Inc":
			foundBeta = true
		}
	}
	if !foundAlpha {
		t.Fatalf("match missing Alpha Co: %+v", res.Nodes)
	}
	if foundBeta {
		t.Fatalf("unrelated Beta Inc leaked into the match: %+v", res.Nodes)
	}

	// one-hop expansion pulls in the deal id hub
	foundHub := false
	for _, node := range res.Nodes {
		if node.EntityText == "101" {
			foundHub = true
		}
	}
	if !foundHub {
		t.Fatalf("one-hop expansion missing hub 101: %+v", res.Nodes)
	}

	for _, edge := range res.Edges {
		if edge.Source >= len(res.Nodes) || edge.Target >= len(res.Nodes) {
			t.Fatalf("edge %+v references node outside result", edge)
		}
	}
}

func TestBuilder_QueryFallbackAndCap(t *testing.T) {
	ctx := context.Background()
	strategy := &fixedStrategy{results: map[string]extract.Result{}}
	for i := 0; i < 60; i++ {
		content := "rec" + string(rune('A'+i%26)) + string(rune('0'+i/26))
		strategy.results[content] = extract.Result{
			Entities: []common.Entity{{Text: content, Type: common.TypeValue, Value: content}},
		}
	}
	b := NewBuilder(NewBuilderParams{
		Chain: extract.NewChain(strategy),
		Store: newMemStore(),
	})

	var records []common.Record
	for content := range strategy.results {
		records = append(records, common.Record{"content": content})
	}
	if _, err := b.Build(ctx, records, "f1", "u1", ""); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// no extractable entities in the query text -> overview fallback
	res := b.Query(ctx, "show me everything", "u1")
	if len(res.Nodes) != maxQueryNodes {
		t.Fatalf("fallback nodes = %d, want cap %d", len(res.Nodes), maxQueryNodes)
	}
}

func TestBuilder_QueryNoMatchReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	strategy := &fixedStrategy{results: map[string]extract.Result{
		"alpha deal record": {
			Entities: []common.Entity{{Text: "Alpha Co", Type: common.TypeOrg, Value: "Alpha Co"}},
		},
		"xyz-no-match": {
			Entities: []common.Entity{{Text: "zzz", Type: common.TypeValue, Value: "zzz"}},
		},
	}}
	b := NewBuilder(NewBuilderParams{
		Chain: extract.NewChain(strategy),
		Store: newMemStore(),
	})

	if _, err := b.Build(ctx, []common.Record{{"content": "alpha deal record"}}, "f1", "u1", ""); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// the query yields an entity, but nothing in the graph matches it: no
	// overview fallback, just an empty result
	res := b.Query(ctx, "xyz-no-match", "u1")
	if len(res.Nodes) != 0 || len(res.Edges) != 0 {
		t.Fatalf("no-match result = %+v, want empty", res)
	}
}

func TestBuilder_QueryAbsentUser(t *testing.T) {
	b := patternBuilder(newMemStore())
	res := b.Query(context.Background(), "anything", "nobody")
	if res.Nodes == nil || res.Edges == nil {
		t.Fatalf("result slices must be non-nil")
	}
	if len(res.Nodes) != 0 || len(res.Edges) != 0 {
		t.Fatalf("absent user result = %+v, want empty", res)
	}
}

func TestBuilder_DeleteFile(t *testing.T) {
	ctx := context.Background()
	mem := newMemStore()
	b := patternBuilder(mem)

	if _, err := b.Build(ctx, []common.Record{dealRecord("101", "Alpha Co", "$5,000", "Closed")}, "f1", "u1", "deals"); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if _, err := b.Build(ctx, []common.Record{dealRecord("102", "Beta Inc", "$750", "Open")}, "f2", "u1", "deals"); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	removed, err := b.DeleteFile(ctx, "u1", "f1")
	if err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
	if removed != 4 {
		t.Fatalf("removed = %d, want 4", removed)
	}

	g := b.getGraph("u1")
	if g.HasNode(common.NodeKey("101", common.TypeID)) {
		t.Fatalf("node from deleted file survived")
	}
	if !g.HasNode(common.NodeKey("102", common.TypeID)) {
		t.Fatalf("node from remaining file was removed")
	}

	// deleting the second file empties the graph and the user becomes absent
	if _, err := b.DeleteFile(ctx, "u1", "f2"); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
	if _, err := mem.LoadGraph(ctx, "u1"); err != store.ErrNotFound {
		t.Fatalf("LoadGraph() error = %v, want ErrNotFound after emptying", err)
	}
}

func TestBuilder_DeleteUser(t *testing.T) {
	ctx := context.Background()
	mem := newMemStore()
	b := patternBuilder(mem)

	if _, err := b.Build(ctx, []common.Record{dealRecord("101", "Alpha Co", "$5,000", "Closed")}, "f1", "u1", "deals"); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if err := b.Delete(ctx, "u1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := mem.LoadGraph(ctx, "u1"); err != store.ErrNotFound {
		t.Fatalf("blob survived delete")
	}
	if nodes := b.Nodes(ctx, "u1"); nodes != nil {
		t.Fatalf("Nodes() after delete = %+v, want nil", nodes)
	}
}

func TestBuilder_ReloadsFromStore(t *testing.T) {
	ctx := context.Background()
	mem := newMemStore()

	first := patternBuilder(mem)
	if _, err := first.Build(ctx, []common.Record{dealRecord("101", "Alpha Co", "$5,000", "Closed")}, "f1", "u1", "deals"); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// a fresh builder over the same store lazily reloads the persisted graph
	second := patternBuilder(mem)
	nodes := second.Nodes(ctx, "u1")
	if len(nodes) != 4 {
		t.Fatalf("reloaded nodes = %d, want 4", len(nodes))
	}
}
