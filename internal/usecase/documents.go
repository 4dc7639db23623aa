package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"studyrag/internal/adapter/metrics"
	"studyrag/internal/domain"
	"studyrag/internal/port"
)

// DocumentService chunks, embeds and stores uploaded documents.
type DocumentService struct {
	store    port.DocumentStore
	chunker  port.Chunker
	embedder port.Embedder
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewDocumentService(
	store port.DocumentStore,
	chunker port.Chunker,
	embedder port.Embedder,
	logger *zap.Logger,
	m *metrics.Metrics,
) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{
		store:    store,
		chunker:  chunker,
		embedder: embedder,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

type UploadResult struct {
	Filename       string `json:"filename"`
	TextLength     int    `json:"text_length"`
	ChunkCount     int    `json:"chunks_created"`
	EmbeddingCount int    `json:"embedding_count"`
}

// Upload creates or replaces a document. Chunking and embedding finish
// before the store is touched, so readers never observe a partial document.
// Empty text is stored with zero chunks.
func (s *DocumentService) Upload(ctx context.Context, filename, rawText string) (*UploadResult, error) {
	filename, err := ValidateFilename(filename)
	if err != nil {
		return nil, err
	}

	doc, err := s.build(ctx, filename, rawText, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(doc); err != nil {
		return nil, fmt.Errorf("failed to store document %q: %w", filename, err)
	}

	info := doc.Info()
	s.metrics.Upload(info.EmbeddingCount, info.ChunkCount-info.EmbeddingCount)
	s.logger.Info("document stored",
		zap.String("filename", filename),
		zap.Int("length", info.Length),
		zap.Int("chunks", info.ChunkCount),
		zap.Int("embedded", info.EmbeddingCount),
	)

	return &UploadResult{
		Filename:       filename,
		TextLength:     info.Length,
		ChunkCount:     info.ChunkCount,
		EmbeddingCount: info.EmbeddingCount,
	}, nil
}

func (s *DocumentService) build(ctx context.Context, filename, rawText string, createdAt time.Time) (domain.Document, error) {
	chunks := s.chunker.Chunk(filename, rawText)

	for i := range chunks {
		vec, err := s.embedder.Embed(ctx, chunks[i].Text)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return domain.Document{}, ctxErr
			}
			s.logger.Warn("chunk stored without embedding",
				zap.String("filename", filename),
				zap.Int("chunk", i),
				zap.Error(err),
			)
			continue
		}
		// Read after Embed: an embedder may learn its dimension from the first response.
		if want := s.embedder.Dimension(); len(vec) != want {
			s.logger.Warn("chunk embedding has unexpected dimension, stored without embedding",
				zap.String("filename", filename),
				zap.Int("chunk", i),
				zap.Int("got", len(vec)),
				zap.Int("want", want),
			)
			continue
		}
		chunks[i].Embedding = domain.HasEmbedding(vec)
	}

	return domain.Document{
		Filename:  filename,
		RawText:   rawText,
		Chunks:    chunks,
		CreatedAt: createdAt,
	}, nil
}

func (s *DocumentService) Get(filename string) (domain.Document, error) {
	doc, err := s.store.Get(filename)
	if err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

func (s *DocumentService) List() ([]domain.DocumentInfo, error) {
	return s.store.List()
}

func (s *DocumentService) Delete(filename string) error {
	if err := s.store.Delete(filename); err != nil {
		return err
	}
	s.logger.Info("document deleted", zap.String("filename", filename))
	return nil
}

type ChunkInspection struct {
	Filename          string `json:"filename"`
	ChunkCount        int    `json:"chunk_count"`
	EmbeddingCount    int    `json:"embedding_count"`
	HasEmbeddings     bool   `json:"has_embeddings"`
	FirstChunkPreview string `json:"first_chunk_preview"`
	TotalLength       int    `json:"total_length"`
}

// Inspect reports how a document was chunked. previewChars bounds the
// preview of the first chunk.
func (s *DocumentService) Inspect(filename string, previewChars int) (*ChunkInspection, error) {
	doc, err := s.store.Get(filename)
	if err != nil {
		return nil, err
	}

	out := &ChunkInspection{
		Filename:       filename,
		ChunkCount:     len(doc.Chunks),
		EmbeddingCount: doc.EmbeddingCount(),
	}
	out.HasEmbeddings = out.EmbeddingCount > 0
	for _, c := range doc.Chunks {
		out.TotalLength += len([]rune(c.Text))
	}
	if len(doc.Chunks) > 0 {
		out.FirstChunkPreview = Truncate(doc.Chunks[0].Text, previewChars)
	}
	return out, nil
}

// Rechunk rebuilds every stored document from its raw text with the current
// chunker and embedder, keeping creation times. progress may be nil.
func (s *DocumentService) Rechunk(ctx context.Context, progress func(filename string)) (int, error) {
	infos, err := s.store.List()
	if err != nil {
		return 0, fmt.Errorf("failed to list documents: %w", err)
	}

	done := 0
	for _, info := range infos {
		old, err := s.store.Get(info.Filename)
		if err != nil {
			return done, fmt.Errorf("failed to load %q: %w", info.Filename, err)
		}
		doc, err := s.build(ctx, old.Filename, old.RawText, old.CreatedAt)
		if err != nil {
			return done, err
		}
		if err := s.store.Put(doc); err != nil {
			return done, fmt.Errorf("failed to store %q: %w", info.Filename, err)
		}
		done++
		if progress != nil {
			progress(info.Filename)
		}
	}

	s.logger.Info("documents rechunked", zap.Int("count", done))
	return done, nil
}

// ValidateFilename trims surrounding space and rejects names that cannot
// serve as a document key.
func ValidateFilename(filename string) (string, error) {
	filename = strings.TrimSpace(filename)
	switch {
	case filename == "":
		return "", fmt.Errorf("%w: filename is required", domain.ErrInvalidInput)
	case strings.ContainsRune(filename, 0):
		return "", fmt.Errorf("%w: filename contains a NUL byte", domain.ErrInvalidInput)
	case strings.HasPrefix(filename, "/") || strings.Contains(filename, "\\"):
		return "", fmt.Errorf("%w: filename %q must be a relative slash-separated name", domain.ErrInvalidInput, filename)
	}
	for _, part := range strings.Split(filename, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("%w: filename %q has an empty or relative path segment", domain.ErrInvalidInput, filename)
		}
	}
	return filename, nil
}

// Truncate shortens s to at most n runes, marking the cut with "...".
// n <= 0 disables truncation.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
