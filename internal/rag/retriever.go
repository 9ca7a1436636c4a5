package rag

import (
	"fmt"
	"math"
	"sort"
)

// Index is a loaded set of embedded chunks for one data directory.
type Index struct {
	DataDir string
	Entries []IndexEntry
}

// scoredEntry is a chunk plus similarity score.
type scoredEntry struct {
	Entry IndexEntry
	Score float64
}

// Search returns at most topK entries ranked by cosine similarity to queryVec. Every
// entry must have the query's dimension; an index built with another embedding model
// fails with ErrDimensionMismatch.
func (idx *Index) Search(queryVec []float64, topK int) ([]QueryResult, error) {
	for _, entry := range idx.Entries {
		if len(entry.Embedding) != len(queryVec) {
			return nil, fmt.Errorf("%w: %w: chunk %s has %d dimensions, query has %d; invalidate the index to rebuild it",
				ErrIndexCorrupt, ErrDimensionMismatch, entry.ChunkID, len(entry.Embedding), len(queryVec))
		}
	}
	scored := scoreEntries(idx.Entries, queryVec)
	if topK > len(scored) {
		topK = len(scored)
	}
	results := make([]QueryResult, 0, topK)
	for _, s := range scored[:topK] {
		results = append(results, QueryResult{
			Content:  s.Entry.Text,
			Metadata: s.Entry.Metadata(),
			Score:    s.Score,
		})
	}
	return results, nil
}

// scoreEntries ranks entries by descending similarity. Ties keep index order. Callers
// check dimensions first.
func scoreEntries(entries []IndexEntry, queryVec []float64) []scoredEntry {
	chunks := make([]scoredEntry, 0, len(entries))
	queryNorm := vectorNorm(queryVec)
	for _, entry := range entries {
		score := cosineSimilarity(queryVec, entry.Embedding, queryNorm)
		chunks = append(chunks, scoredEntry{
			Entry: entry,
			Score: score,
		})
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score > chunks[j].Score
	})

	return chunks
}

func cosineSimilarity(a, b []float64, normA float64) float64 {
	if normA == 0 {
		return 0
	}
	normB := vectorNorm(b)
	if normB == 0 {
		return 0
	}
	dot := 0.0
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot / (normA * normB)
}

func vectorNorm(v []float64) float64 {
	sum := 0.0
	for _, val := range v {
		sum += val * val
	}
	return math.Sqrt(sum)
}
