package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"studyrag/internal/adapter/analyzer"
	"studyrag/internal/adapter/chunker"
	"studyrag/internal/adapter/embedding"
	"studyrag/internal/adapter/fs"
	"studyrag/internal/adapter/memstore"
	"studyrag/internal/adapter/retriever"
)

type fakeLLM struct {
	mu       sync.Mutex
	response string
	err      error
	prompts  []string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeLLM) ModelName() string { return "fake" }

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// flakyEmbedder fails for texts containing "FAIL" and otherwise delegates.
type flakyEmbedder struct {
	inner *embedding.HashEmbedder
	dim   int
}

func (e *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "FAIL") {
		return nil, errors.New("embedding backend down")
	}
	return e.inner.Embed(ctx, text)
}

func (e *flakyEmbedder) Dimension() int    { return e.dim }
func (e *flakyEmbedder) ModelName() string { return "flaky" }

type fixture struct {
	docs      *memstore.DocumentStore
	sessions  *memstore.SessionStore
	llm       *fakeLLM
	documents *DocumentService
	retriever *retriever.Retriever
	answers   *AnswerPipeline
	study     *StudyTools
	service   *Service
}

func newFixture(t *testing.T, size, overlap int) *fixture {
	t.Helper()
	c, err := chunker.NewWindowChunker(size, overlap)
	require.NoError(t, err)

	f := &fixture{
		docs:     memstore.NewDocumentStore(),
		sessions: memstore.NewSessionStore(),
		llm:      &fakeLLM{response: "Mitochondria make ATP."},
	}
	emb := embedding.NewHashEmbedder(64)
	f.documents = NewDocumentService(f.docs, c, emb, nil, nil)
	f.retriever = retriever.New(f.docs, emb, retriever.NewScorer(analyzer.NewTokenizer(true)), nil, nil)
	f.answers = NewAnswerPipeline(f.retriever, f.sessions, f.llm, 3, nil, nil)
	f.study = NewStudyTools(f.docs, f.retriever, f.llm, 1000, 1000, nil, nil)
	ingester := NewIngester(fs.NewWalker(nil, nil), fs.TextReader{}, f.documents, nil)
	f.service = NewService(f.documents, f.answers, f.study, ingester, f.retriever, f.sessions,
		ServiceOptions{TopK: 3, PreviewChars: 20})
	return f
}
