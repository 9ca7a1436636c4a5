package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// letterEmbedder maps text to its letter frequency vector.
type letterEmbedder struct {
	calls atomic.Int64
	fail  error
}

func (e *letterEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	e.calls.Add(1)
	if e.fail != nil {
		return nil, e.fail
	}
	vec := make([]float64, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			vec[r-'a']++
		}
	}
	return vec, nil
}

func (e *letterEmbedder) Model() string { return "letters" }

// embedderFunc adapts a plain function to Embedder.
type embedderFunc func(text string) []float64

func (f embedderFunc) Embed(_ context.Context, text string) ([]float64, error) {
	return f(text), nil
}

func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return dir
}

func newTestCache(embedder Embedder) *IndexCache {
	return NewIndexCache(embedder, Options{ChunkSize: 8, ChunkOverlap: 2}, WithClock(clockwork.NewFakeClock()))
}

func TestQueryBuildsThenLoads(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"apples.txt":       "apples are red and sweet",
		"nested/zebra.txt": "zebras have stripes",
	})
	embedder := &letterEmbedder{}
	cache := newTestCache(embedder)

	first, err := cache.Query(context.Background(), dir, "red apples", 5)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "apples are red and sweet", first[0].Content)
	assert.Equal(t, "apples.txt", first[0].Metadata["file_path"])
	builtCalls := embedder.calls.Load()
	assert.Equal(t, int64(3), builtCalls, "two chunks plus the question")

	_, err = os.Stat(filepath.Join(StoragePath(dir), IndexFileName))
	require.NoError(t, err)

	second, err := cache.Query(context.Background(), dir, "red apples", 5)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, builtCalls+1, embedder.calls.Load(), "load only embeds the question")
}

func TestQueryBoundsResultsByTopK(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"a.txt": "alpha",
		"b.txt": "beta",
		"c.txt": "gamma",
	})
	cache := newTestCache(&letterEmbedder{})

	results, err := cache.Query(context.Background(), dir, "alpha", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = cache.Query(context.Background(), dir, "alpha", 10)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestQueryValidatesBeforeEmbedding(t *testing.T) {
	dir := writeCorpus(t, map[string]string{"a.txt": "alpha"})
	embedder := &letterEmbedder{}
	cache := newTestCache(embedder)

	_, err := cache.Query(context.Background(), dir, "alpha", 0)
	assert.ErrorIs(t, err, ErrInvalidTopK)

	_, err = cache.Query(context.Background(), dir, "   ", 3)
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	assert.Zero(t, embedder.calls.Load())
	_, err = os.Stat(StoragePath(dir))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestQueryRejectsMissingDirectory(t *testing.T) {
	cache := newTestCache(&letterEmbedder{})
	_, err := cache.Query(context.Background(), filepath.Join(t.TempDir(), "missing"), "alpha", 1)
	require.Error(t, err)
}

func TestBuildSkipsCacheDirectory(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"doc.txt":               "real document",
		".cache/leftover.txt":   "should never be indexed",
		".cache/storage/x.json": "{}",
	})
	require.NoError(t, os.RemoveAll(StoragePath(dir)))
	cache := newTestCache(&letterEmbedder{})

	index, built, err := cache.Resolve(context.Background(), dir)
	require.NoError(t, err)
	assert.True(t, built)
	require.Len(t, index.Entries, 1)
	assert.Equal(t, "doc.txt", index.Entries[0].Doc)
}

func TestBuildIndexesNestedCacheDirectories(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"project/.cache/notes.txt": "nested cache notes",
		".cache/leftover.txt":      "should never be indexed",
	})
	cache := newTestCache(&letterEmbedder{})

	index, _, err := cache.Resolve(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, index.Entries, 1)
	assert.Equal(t, "project/.cache/notes.txt", index.Entries[0].Doc)
}

func TestBuildWithNoDocuments(t *testing.T) {
	dir := writeCorpus(t, map[string]string{"empty.txt": "   \n"})
	cache := newTestCache(&letterEmbedder{})

	_, err := cache.Query(context.Background(), dir, "anything", 1)
	assert.ErrorIs(t, err, ErrNoDocuments)
	_, statErr := os.Stat(StoragePath(dir))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestBuildFailureLeavesNoStorage(t *testing.T) {
	dir := writeCorpus(t, map[string]string{"a.txt": "alpha"})
	cache := newTestCache(&letterEmbedder{fail: errors.New("embedding host down")})

	_, err := cache.Query(context.Background(), dir, "alpha", 1)
	require.Error(t, err)

	present, err := storagePresent(StoragePath(dir))
	require.NoError(t, err)
	assert.False(t, present)

	leftovers, err := filepath.Glob(filepath.Join(CacheDir(dir), StorageDirName+".tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestEmptyStorageIsRebuilt(t *testing.T) {
	dir := writeCorpus(t, map[string]string{"a.txt": "alpha"})
	require.NoError(t, os.MkdirAll(StoragePath(dir), 0o755))
	cache := newTestCache(&letterEmbedder{})

	_, built, err := cache.Resolve(context.Background(), dir)
	require.NoError(t, err)
	assert.True(t, built)
}

func TestCorruptIndexIsHardFailure(t *testing.T) {
	dir := writeCorpus(t, map[string]string{"a.txt": "alpha"})
	storage := StoragePath(dir)
	require.NoError(t, os.MkdirAll(storage, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(storage, IndexFileName), []byte("{not json\n"), 0o644))
	embedder := &letterEmbedder{}
	cache := newTestCache(embedder)

	_, err := cache.Query(context.Background(), dir, "alpha", 1)
	assert.ErrorIs(t, err, ErrIndexCorrupt)
	assert.Zero(t, embedder.calls.Load())
}

func TestInvalidateForcesRebuild(t *testing.T) {
	dir := writeCorpus(t, map[string]string{"a.txt": "alpha"})
	cache := newTestCache(&letterEmbedder{})

	_, built, err := cache.Resolve(context.Background(), dir)
	require.NoError(t, err)
	require.True(t, built)

	_, built, err = cache.Resolve(context.Background(), dir)
	require.NoError(t, err)
	require.False(t, built)

	require.NoError(t, cache.Invalidate(dir))
	_, built, err = cache.Resolve(context.Background(), dir)
	require.NoError(t, err)
	assert.True(t, built)
}

func TestLauncherWrittenOnBuildOnly(t *testing.T) {
	dir := writeCorpus(t, map[string]string{"a.txt": "alpha"})
	cache := NewIndexCache(&letterEmbedder{}, Options{ChunkSize: 8, WriteLauncher: true, Executable: "/usr/local/bin/eda"})

	_, _, err := cache.Resolve(context.Background(), dir)
	require.NoError(t, err)

	script, err := os.ReadFile(LauncherPath(dir))
	require.NoError(t, err)
	assert.Contains(t, string(script), "exec '/usr/local/bin/eda' 'mcp' 'serve' '--data-dir'")
	assert.Contains(t, string(script), shellQuote(dir))

	require.NoError(t, os.Remove(LauncherPath(dir)))
	_, built, err := cache.Resolve(context.Background(), dir)
	require.NoError(t, err)
	require.False(t, built)
	_, err = os.Stat(LauncherPath(dir))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestScoreEntriesOrdersBySimilarity(t *testing.T) {
	entries := []IndexEntry{
		{Doc: "a", Embedding: []float64{1, 0}},
		{Doc: "b", Embedding: []float64{0, 1}},
		{Doc: "c", Embedding: []float64{1, 1}},
	}
	query := []float64{1, 0}

	chunks := scoreEntries(entries, query)
	require.Len(t, chunks, 3)
	assert.Equal(t, "a", chunks[0].Entry.Doc)
	assert.Equal(t, "c", chunks[1].Entry.Doc)
}

func TestSearchRejectsDimensionMismatch(t *testing.T) {
	index := &Index{Entries: []IndexEntry{
		{ChunkID: "a:0", Embedding: []float64{1, 0}},
		{ChunkID: "b:0", Embedding: []float64{1, 0, 0}},
	}}
	results, err := index.Search([]float64{1, 0}, 2)
	assert.Nil(t, results)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.ErrorIs(t, err, ErrIndexCorrupt)
}

func TestQueryFailsWhenEmbeddingModelChangesDimensions(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"apples.txt": "apples are red and sweet",
		"zebra.txt":  "zebras have stripes",
	})
	first, err := newTestCache(&letterEmbedder{}).Query(context.Background(), dir, "apples", 5)
	require.NoError(t, err)
	require.Len(t, first, 2)

	wider := embedderFunc(func(text string) []float64 { return make([]float64, 8) })
	results, err := newTestCache(wider).Query(context.Background(), dir, "apples", 5)
	assert.Empty(t, results)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestScoreEntriesKeepsInsertionOrderOnTies(t *testing.T) {
	entries := []IndexEntry{
		{Doc: "first", Embedding: []float64{1, 2}},
		{Doc: "second", Embedding: []float64{1, 2}},
		{Doc: "third", Embedding: []float64{1, 2}},
	}
	chunks := scoreEntries(entries, []float64{2, 1})
	require.Len(t, chunks, 3)
	assert.Equal(t, "first", chunks[0].Entry.Doc)
	assert.Equal(t, "second", chunks[1].Entry.Doc)
	assert.Equal(t, "third", chunks[2].Entry.Doc)
}

type failingCloser struct {
	strings.Builder
}

func (f *failingCloser) Close() error { return errors.New("disk quota exceeded") }

func TestEncodeEntriesReportsCloseFailure(t *testing.T) {
	out := &failingCloser{}
	err := encodeEntries(out, []IndexEntry{{ChunkID: "a:0", Doc: "a", Text: "alpha"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close index file")
	assert.Contains(t, out.String(), `"chunk_id":"a:0"`)
}

func TestChunkTextOverlaps(t *testing.T) {
	chunks := ChunkText("one two three four five six", 4, 2)
	require.Len(t, chunks, 2)
	assert.Equal(t, "one two three four", chunks[0].Text)
	assert.Equal(t, 2, chunks[1].Offset)
	assert.Equal(t, "three four five six", chunks[1].Text)
}

func TestFormatResults(t *testing.T) {
	out := FormatResults([]QueryResult{{
		Content:  "line one\nline two",
		Metadata: map[string]any{"file_path": "a.txt", "chunk_id": "a.txt:0"},
		Score:    0.5,
	}})
	assert.Equal(t, "-----\nText:\tline one line two\nMetadata:\tchunk_id=a.txt:0 file_path=a.txt\nScore:\t0.5000", out)
	assert.Equal(t, "No results.", FormatResults(nil))
}
