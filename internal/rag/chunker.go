package rag

import "strings"

// Chunk is a window of words cut from a document. Offset is the index of its first word.
type Chunk struct {
	Offset int
	Text   string
	Tokens int
}

// ChunkText slides a window of size words over text, advancing by size-overlap words.
// Words stand in for tokens. The last window always ends at the final word.
func ChunkText(text string, size, overlap int) []Chunk {
	words := strings.Fields(text)
	if size <= 0 || len(words) == 0 {
		return nil
	}
	stride := size - max(overlap, 0)
	if stride <= 0 {
		stride = size
	}

	chunks := make([]Chunk, 0, (len(words)+stride-1)/stride)
	for start := 0; ; start += stride {
		end := min(start+size, len(words))
		chunks = append(chunks, Chunk{
			Offset: start,
			Text:   strings.Join(words[start:end], " "),
			Tokens: end - start,
		})
		if end == len(words) {
			return chunks
		}
	}
}
