package extract

import (
	"context"
	"errors"
	"testing"

	"docrag/pkg/common"
)

type stubStrategy struct {
	name   string
	result Result
	err    error
	calls  int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Extract(ctx context.Context, content string, docTypeHint string) (Result, error) {
	s.calls++
	return s.result, s.err
}

func TestChain_FallsThroughOnFailureAndEmpty(t *testing.T) {
	failing := &stubStrategy{name: "failing", err: errors.New("model unavailable")}
	empty := &stubStrategy{name: "empty"}
	producing := &stubStrategy{
		name: "producing",
		result: Result{
			Entities: []common.Entity{{Text: "101", Type: common.TypeID, Value: "101"}},
			DocType:  "deals",
		},
	}

	chain := NewChain(failing, empty, producing)
	res := chain.Extract(context.Background(), "some content", "hint")

	if failing.calls != 1 || empty.calls != 1 || producing.calls != 1 {
		t.Fatalf("call counts = %d/%d/%d, want 1/1/1", failing.calls, empty.calls, producing.calls)
	}
	if len(res.Entities) != 1 || res.Entities[0].Text != "101" {
		t.Fatalf("entities = %+v, want the producing strategy's output", res.Entities)
	}
	if res.DocType != "deals" {
		t.Fatalf("doc type = %q, want %q", res.DocType, "deals")
	}
}

func TestChain_FirstProducerWins(t *testing.T) {
	first := &stubStrategy{
		name:   "first",
		result: Result{Entities: []common.Entity{{Text: "first", Type: common.TypeValue, Value: "first"}}},
	}
	second := &stubStrategy{
		name:   "second",
		result: Result{Entities: []common.Entity{{Text: "second", Type: common.TypeValue, Value: "second"}}},
	}

	res := NewChain(first, second).Extract(context.Background(), "content", "")

	if second.calls != 0 {
		t.Fatalf("second strategy ran %d times, want 0", second.calls)
	}
	if len(res.Entities) != 1 || res.Entities[0].Text != "first" {
		t.Fatalf("entities = %+v, want only the first strategy's output", res.Entities)
	}
}

func TestChain_ExhaustedReturnsHint(t *testing.T) {
	chain := NewChain(&stubStrategy{name: "empty"})
	res := chain.Extract(context.Background(), "content", "deals")

	if len(res.Entities) != 0 || len(res.Relations) != 0 {
		t.Fatalf("result = %+v, want empty", res)
	}
	if res.DocType != "deals" {
		t.Fatalf("doc type = %q, want hint passthrough", res.DocType)
	}
}

func TestChain_SkipsNilStrategies(t *testing.T) {
	producing := &stubStrategy{
		name:   "producing",
		result: Result{Entities: []common.Entity{{Text: "x", Type: common.TypeValue, Value: "x"}}},
	}
	chain := NewChain(nil, producing, nil)

	res := chain.Extract(context.Background(), "content", "")
	if len(res.Entities) != 1 {
		t.Fatalf("entities = %+v, want output from the non-nil strategy", res.Entities)
	}
}
