package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrag/internal/adapter/analyzer"
	"studyrag/internal/adapter/memstore"
	"studyrag/internal/domain"
)

// fixedEmbedder maps known texts to vectors and fails for everything else.
type fixedEmbedder struct {
	dim     int
	vectors map[string][]float32
	calls   int
}

func (e *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return nil, domain.ErrEmbeddingUnavailable
}

func (e *fixedEmbedder) Dimension() int    { return e.dim }
func (e *fixedEmbedder) ModelName() string { return "fixed" }

func chunk(doc string, idx int, text string, vec []float32) domain.Chunk {
	return domain.Chunk{DocumentFilename: doc, Index: idx, Text: text, Embedding: domain.HasEmbedding(vec)}
}

func newRetriever(t *testing.T, emb *fixedEmbedder, docs ...domain.Document) (*Retriever, *memstore.DocumentStore) {
	t.Helper()
	store := memstore.NewDocumentStore()
	for _, d := range docs {
		require.NoError(t, store.Put(d))
	}
	return New(store, emb, NewScorer(analyzer.NewTokenizer(true)), nil, nil), store
}

func TestCosineSimilarity(t *testing.T) {
	v := []float32{0.3, -1.2, 4}
	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-2, 0}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}))
}

func TestScorer_Lexical(t *testing.T) {
	s := NewScorer(analyzer.NewTokenizer(true))
	assert.InDelta(t, 0.5, s.LexicalScore("DNA replication", "dna is a molecule"), 1e-9)
	assert.Equal(t, 1.0, s.LexicalScore("dna dna", "DNA"))
	assert.Equal(t, 0.0, s.LexicalScore("the of", "the of"))
}

func TestRetrieve_TopKWithFewerChunks(t *testing.T) {
	emb := &fixedEmbedder{dim: 2, vectors: map[string][]float32{"query": {1, 0}}}
	doc := domain.Document{Filename: "a.txt", Chunks: []domain.Chunk{
		chunk("a.txt", 0, "one", []float32{0, 1}),
		chunk("a.txt", 1, "two", []float32{1, 0}),
	}}
	r, _ := newRetriever(t, emb, doc)

	res, err := r.Retrieve(context.Background(), "query", domain.Documents("a.txt"), 3)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, 1, res[0].Chunk.Index)
	assert.InDelta(t, 1.0, res[0].Score, 1e-9)
	assert.Equal(t, domain.StrategyVector, res[0].Strategy)
}

func TestRetrieve_SortsAndTruncates(t *testing.T) {
	emb := &fixedEmbedder{dim: 2, vectors: map[string][]float32{"q": {1, 0}}}
	a := domain.Document{Filename: "a.txt", Chunks: []domain.Chunk{
		chunk("a.txt", 0, "x", []float32{1, 1}),
		chunk("a.txt", 1, "x", []float32{1, 0}),
		chunk("a.txt", 2, "x", []float32{0, 1}),
	}}
	b := domain.Document{Filename: "b.txt", Chunks: []domain.Chunk{
		chunk("b.txt", 0, "x", []float32{1, 1}),
		chunk("b.txt", 1, "x", []float32{3, 0}),
	}}
	r, _ := newRetriever(t, emb, b, a)

	res, err := r.Retrieve(context.Background(), "q", domain.AllDocuments(), 4)
	require.NoError(t, err)
	require.Len(t, res, 4)

	got := make([][2]any, len(res))
	for i, sc := range res {
		got[i] = [2]any{sc.Chunk.DocumentFilename, sc.Chunk.Index}
	}
	assert.Equal(t, [][2]any{
		{"a.txt", 1}, {"b.txt", 1}, {"a.txt", 0}, {"b.txt", 0},
	}, got)
	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
	}
}

func TestRetrieve_Deterministic(t *testing.T) {
	emb := &fixedEmbedder{dim: 2, vectors: map[string][]float32{"q": {1, 2}}}
	doc := domain.Document{Filename: "a.txt"}
	for i := 0; i < 20; i++ {
		doc.Chunks = append(doc.Chunks, chunk("a.txt", i, "text", []float32{float32(i % 3), 1}))
	}
	r, _ := newRetriever(t, emb, doc)

	first, err := r.Retrieve(context.Background(), "q", domain.AllDocuments(), 5)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := r.Retrieve(context.Background(), "q", domain.AllDocuments(), 5)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRetrieve_LexicalFallbackWhenQueryNotEmbedded(t *testing.T) {
	emb := &fixedEmbedder{dim: 2}
	doc := domain.Document{Filename: "bio.txt", Chunks: []domain.Chunk{
		chunk("bio.txt", 0, "Photosynthesis happens in chloroplasts", []float32{1, 0}),
		chunk("bio.txt", 1, "DNA carries genetic information", []float32{0, 1}),
	}}
	r, _ := newRetriever(t, emb, doc)

	res, err := r.Retrieve(context.Background(), "What is DNA?", domain.Documents("bio.txt"), 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, 1, res[0].Chunk.Index)
	assert.Equal(t, domain.StrategyLexical, res[0].Strategy)
	assert.Equal(t, 1.0, res[0].Score)
}

func TestRetrieve_MixedStrategies(t *testing.T) {
	emb := &fixedEmbedder{dim: 2, vectors: map[string][]float32{"dna": {1, 0}}}
	doc := domain.Document{Filename: "a.txt", Chunks: []domain.Chunk{
		chunk("a.txt", 0, "unrelated words", []float32{0, 1}),
		chunk("a.txt", 1, "dna strands", nil),
		chunk("a.txt", 2, "dna again", []float32{1, 0, 0}), // wrong dimension
	}}
	r, _ := newRetriever(t, emb, doc)

	res, err := r.Retrieve(context.Background(), "dna", domain.AllDocuments(), 3)
	require.NoError(t, err)
	require.Len(t, res, 3)

	byIndex := map[int]domain.ScoredChunk{}
	for _, sc := range res {
		byIndex[sc.Chunk.Index] = sc
	}
	assert.Equal(t, domain.StrategyVector, byIndex[0].Strategy)
	assert.Equal(t, domain.StrategyLexical, byIndex[1].Strategy)
	assert.Equal(t, domain.StrategyLexical, byIndex[2].Strategy)
	assert.Equal(t, 1, res[0].Chunk.Index)
	assert.Equal(t, 2, res[1].Chunk.Index)
}

func TestRetrieve_UnknownDocument(t *testing.T) {
	emb := &fixedEmbedder{dim: 2}
	r, store := newRetriever(t, emb, domain.Document{Filename: "a.txt"}, domain.Document{Filename: "b.txt"})

	_, err := r.Retrieve(context.Background(), "q", domain.Documents("a.txt", "zzz.txt"), 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	var dnf *domain.DocumentNotFoundError
	require.True(t, errors.As(err, &dnf))
	assert.Equal(t, "zzz.txt", dnf.Filename)
	assert.Equal(t, []string{"a.txt", "b.txt"}, dnf.Available)
	assert.Equal(t, 0, emb.calls)

	infos, err := store.List()
	require.NoError(t, err)
	assert.Len(t, infos, 2)
}

func TestRetrieve_EmptyCases(t *testing.T) {
	emb := &fixedEmbedder{dim: 2}
	r, _ := newRetriever(t, emb, domain.Document{Filename: "empty.txt"})

	res, err := r.Retrieve(context.Background(), "q", domain.NoDocuments(), 3)
	require.NoError(t, err)
	assert.Empty(t, res)

	res, err = r.Retrieve(context.Background(), "q", domain.Documents("empty.txt"), 3)
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.Equal(t, 0, emb.calls)

	_, err = r.Retrieve(context.Background(), "q", domain.AllDocuments(), 0)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))
}

func TestRetrieve_CanceledContext(t *testing.T) {
	emb := &fixedEmbedder{dim: 2}
	doc := domain.Document{Filename: "a.txt", Chunks: []domain.Chunk{chunk("a.txt", 0, "x", nil)}}
	r, _ := newRetriever(t, emb, doc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Retrieve(ctx, "q", domain.AllDocuments(), 1)
	assert.ErrorIs(t, err, context.Canceled)
}
