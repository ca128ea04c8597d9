package rag

import (
	"testing"

	"docrag/pkg/common"
)

func TestUserIndex_AppendPairsRejectsMismatch(t *testing.T) {
	idx := &userIndex{}

	err := idx.appendPairs(
		[][]float32{{1, 0}},
		[]common.Chunk{{Text: "a"}, {Text: "b"}},
	)
	if err == nil {
		t.Fatalf("appendPairs() accepted mismatched lengths")
	}
	if len(idx.Vectors) != 0 || len(idx.Chunks) != 0 {
		t.Fatalf("rejected batch mutated the index")
	}

	if err := idx.appendPairs([][]float32{{1, 0}}, []common.Chunk{{Text: "a"}}); err != nil {
		t.Fatalf("appendPairs() error = %v", err)
	}
	if err := idx.appendPairs([][]float32{{1, 0, 0}}, []common.Chunk{{Text: "b"}}); err == nil {
		t.Fatalf("appendPairs() accepted a dimension mismatch")
	}
}

func TestUserIndex_SearchOrdersByDistance(t *testing.T) {
	idx := &userIndex{}
	vectors := [][]float32{
		{0, 1},
		{1, 0},
		{0.9, 0.1},
	}
	chunks := []common.Chunk{{Text: "far"}, {Text: "exact"}, {Text: "near"}}
	if err := idx.appendPairs(vectors, chunks); err != nil {
		t.Fatalf("appendPairs() error = %v", err)
	}

	hits := idx.search([]float32{1, 0}, 2)
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	if idx.Chunks[hits[0].ordinal].Text != "exact" || idx.Chunks[hits[1].ordinal].Text != "near" {
		t.Fatalf("hit order = %q, %q; want exact, near",
			idx.Chunks[hits[0].ordinal].Text, idx.Chunks[hits[1].ordinal].Text)
	}
	if hits[0].distance != 0 {
		t.Fatalf("exact match distance = %f, want 0", hits[0].distance)
	}
}

func TestUserIndex_SearchTiesBreakByOrdinal(t *testing.T) {
	idx := &userIndex{}
	vectors := [][]float32{{1, 0}, {1, 0}}
	chunks := []common.Chunk{{Text: "first"}, {Text: "second"}}
	if err := idx.appendPairs(vectors, chunks); err != nil {
		t.Fatalf("appendPairs() error = %v", err)
	}

	hits := idx.search([]float32{1, 0}, 2)
	if hits[0].ordinal != 0 || hits[1].ordinal != 1 {
		t.Fatalf("tie order = %d, %d; want insertion order", hits[0].ordinal, hits[1].ordinal)
	}
}

func TestUserIndex_RemoveByFile(t *testing.T) {
	idx := &userIndex{}
	vectors := [][]float32{{1, 0}, {0, 1}, {1, 1}}
	chunks := []common.Chunk{
		{Text: "a", Metadata: common.Record{"file_id": "f1"}},
		{Text: "b", Metadata: common.Record{"file_id": "f2"}},
		{Text: "c", Metadata: common.Record{"file_id": "f1"}},
	}
	if err := idx.appendPairs(vectors, chunks); err != nil {
		t.Fatalf("appendPairs() error = %v", err)
	}

	removed := idx.removeByFile("f1")
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if len(idx.Chunks) != 1 || len(idx.Vectors) != 1 {
		t.Fatalf("remaining = %d chunks / %d vectors, want 1/1", len(idx.Chunks), len(idx.Vectors))
	}
	if idx.Chunks[0].Text != "b" || idx.Vectors[0][1] != 1 {
		t.Fatalf("parallel slices misaligned after removal")
	}
}
