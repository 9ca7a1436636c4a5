package rag

import "time"

// IndexEntry is a single JSONL record in the persisted index.
type IndexEntry struct {
	ChunkID    string    `json:"chunk_id"`
	Doc        string    `json:"doc"`
	Offset     int       `json:"offset"`
	Text       string    `json:"text"`
	Embedding  []float64 `json:"embedding"`
	TokenCount int       `json:"token_count"`
}

// Manifest describes how a persisted index was built.
type Manifest struct {
	DataDir        string    `json:"data_dir"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	Documents      int       `json:"documents"`
	Chunks         int       `json:"chunks"`
}

// QueryResult is one ranked snippet returned by a similarity query.
type QueryResult struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"`
}

// Metadata returns the metadata attached to results produced from e.
func (e IndexEntry) Metadata() map[string]any {
	return map[string]any{
		"chunk_id":  e.ChunkID,
		"file_path": e.Doc,
		"offset":    e.Offset,
		"tokens":    e.TokenCount,
	}
}
