package rag

import (
	"fmt"
	"math"
	"sort"

	"docrag/pkg/common"
)

// userIndex is one user's flat embedding index: parallel vector and chunk
// slices that grow in lockstep. Search is exhaustive L2 over all vectors,
// which is exact and fast enough at per-user scale.
type userIndex struct {
	Dim     int            `json:"dim"`
	Vectors [][]float32    `json:"vectors"`
	Chunks  []common.Chunk `json:"chunks"`
}

// appendPairs atomically appends vectors and their chunks. A length or
// dimension mismatch rejects the whole batch, keeping the parallel slices
// aligned.
func (idx *userIndex) appendPairs(vectors [][]float32, chunks []common.Chunk) error {
	if len(vectors) != len(chunks) {
		return fmt.Errorf("index append: %d vectors for %d chunks", len(vectors), len(chunks))
	}
	for _, vec := range vectors {
		if idx.Dim == 0 {
			idx.Dim = len(vec)
		}
		if len(vec) != idx.Dim {
			return fmt.Errorf("index append: vector dimension %d, index dimension %d", len(vec), idx.Dim)
		}
	}
	idx.Vectors = append(idx.Vectors, vectors...)
	idx.Chunks = append(idx.Chunks, chunks...)
	return nil
}

// removeByFile drops every chunk tagged with fileID and its vector, and
// reports how many were removed.
func (idx *userIndex) removeByFile(fileID string) int {
	vectors := idx.Vectors[:0]
	chunks := idx.Chunks[:0]
	removed := 0
	for i, chunk := range idx.Chunks {
		if chunk.FileID() == fileID {
			removed++
			continue
		}
		vectors = append(vectors, idx.Vectors[i])
		chunks = append(chunks, chunk)
	}
	idx.Vectors = vectors
	idx.Chunks = chunks
	return removed
}

type searchHit struct {
	ordinal  int
	distance float64
}

// search returns the limit nearest chunks to query by L2 distance, closest
// first. Equal distances break by insertion ordinal so results are stable.
func (idx *userIndex) search(query []float32, limit int) []searchHit {
	if len(idx.Vectors) == 0 || len(query) != idx.Dim {
		return nil
	}

	hits := make([]searchHit, len(idx.Vectors))
	for i, vec := range idx.Vectors {
		hits[i] = searchHit{ordinal: i, distance: l2Distance(query, vec)}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].distance < hits[b].distance
	})

	if limit < len(hits) {
		hits = hits[:limit]
	}
	return hits
}

func l2Distance(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
