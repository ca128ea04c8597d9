package search

import (
	"math"
	"sort"
	"strings"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// bm25Index is an Okapi BM25 index over a fixed document list. Tokenization
// is lowercase whitespace splitting, matching how the chunk corpus is
// written.
type bm25Index struct {
	docs      [][]string
	docFreq   map[string]int
	docLen    []int
	avgDocLen float64
}

func newBM25Index(documents []string) *bm25Index {
	idx := &bm25Index{
		docs:    make([][]string, len(documents)),
		docFreq: make(map[string]int),
		docLen:  make([]int, len(documents)),
	}

	totalLen := 0
	for i, doc := range documents {
		tokens := tokenize(doc)
		idx.docs[i] = tokens
		idx.docLen[i] = len(tokens)
		totalLen += len(tokens)

		seen := make(map[string]struct{}, len(tokens))
		for _, token := range tokens {
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			idx.docFreq[token]++
		}
	}
	if len(documents) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(documents))
	}
	return idx
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// scores returns the BM25 score of every document against query, in
// document order.
func (idx *bm25Index) scores(query string) []float64 {
	queryTokens := tokenize(query)
	out := make([]float64, len(idx.docs))
	n := float64(len(idx.docs))

	for _, token := range queryTokens {
		df, ok := idx.docFreq[token]
		if !ok {
			continue
		}
		idf := math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1)

		for i, doc := range idx.docs {
			tf := 0
			for _, t := range doc {
				if t == token {
					tf++
				}
			}
			if tf == 0 {
				continue
			}
			norm := 1 - bm25B + bm25B*float64(idx.docLen[i])/idx.avgDocLen
			out[i] += idf * float64(tf) * (bm25K1 + 1) / (float64(tf) + bm25K1*norm)
		}
	}
	return out
}

// topN returns the indices of the n best-scoring documents, best first.
// Zero-score documents are excluded. Ties break by document order.
func (idx *bm25Index) topN(query string, n int) []scoredDoc {
	scores := idx.scores(query)

	var hits []scoredDoc
	for i, score := range scores {
		if score > 0 {
			hits = append(hits, scoredDoc{ordinal: i, score: score})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].score > hits[b].score
	})
	if len(hits) > n {
		hits = hits[:n]
	}
	return hits
}

type scoredDoc struct {
	ordinal int
	score   float64
}
