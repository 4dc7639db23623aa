package retriever

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"studyrag/internal/adapter/metrics"
	"studyrag/internal/domain"
	"studyrag/internal/port"
)

const DefaultTopK = 3

// Retriever ranks the chunks of the scoped documents against a query.
type Retriever struct {
	store    port.DocumentStore
	embedder port.Embedder
	scorer   *Scorer
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func New(
	store port.DocumentStore,
	embedder port.Embedder,
	scorer *Scorer,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		store:    store,
		embedder: embedder,
		scorer:   scorer,
		logger:   logger,
		metrics:  m,
	}
}

func (r *Retriever) Retrieve(ctx context.Context, query string, scope domain.Scope, k int) (domain.RetrievalResult, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: top-k must be at least 1, got %d", domain.ErrInvalidConfiguration, k)
	}
	if scope.Kind == domain.ScopeNone {
		return domain.RetrievalResult{}, nil
	}

	docs, err := r.Candidates(scope)
	if err != nil {
		return nil, err
	}

	var chunks []domain.Chunk
	for _, doc := range docs {
		chunks = append(chunks, doc.Chunks...)
	}
	if len(chunks) == 0 {
		return domain.RetrievalResult{}, nil
	}

	start := time.Now()
	queryVec, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	scored := r.scorer.Score(query, queryVec, chunks)
	Sort(scored)
	if len(scored) > k {
		scored = scored[:k]
	}

	strategy := string(domain.StrategyLexical)
	if queryVec != nil {
		strategy = string(domain.StrategyVector)
	}
	r.metrics.Retrieval(strategy, time.Since(start))
	r.logger.Debug("retrieval completed",
		zap.String("scope", scope.String()),
		zap.String("strategy", strategy),
		zap.Int("documents", len(docs)),
		zap.Int("candidates", len(chunks)),
		zap.Int("returned", len(scored)),
	)

	return domain.RetrievalResult(scored), nil
}

// Candidates resolves a scope to complete document snapshots. Every named
// document must exist; nothing is read past the first missing name.
func (r *Retriever) Candidates(scope domain.Scope) ([]domain.Document, error) {
	switch scope.Kind {
	case domain.ScopeNone:
		return nil, nil

	case domain.ScopeDocuments:
		seen := make(map[string]struct{}, len(scope.Filenames))
		docs := make([]domain.Document, 0, len(scope.Filenames))
		for _, name := range scope.Filenames {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}

			doc, err := r.store.Get(name)
			if errors.Is(err, domain.ErrNotFound) {
				return nil, r.notFound(name)
			}
			if err != nil {
				return nil, fmt.Errorf("failed to load document %q: %w", name, err)
			}
			docs = append(docs, doc)
		}
		return docs, nil

	case domain.ScopeAll:
		infos, err := r.store.List()
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}
		docs := make([]domain.Document, 0, len(infos))
		for _, info := range infos {
			doc, err := r.store.Get(info.Filename)
			if errors.Is(err, domain.ErrNotFound) {
				continue // deleted concurrently
			}
			if err != nil {
				return nil, fmt.Errorf("failed to load document %q: %w", info.Filename, err)
			}
			docs = append(docs, doc)
		}
		return docs, nil
	}

	return nil, fmt.Errorf("%w: unknown scope", domain.ErrInvalidInput)
}

// embedQuery returns nil when the query cannot be embedded so scoring falls
// back to lexical overlap. Only caller cancellation is an error.
func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		r.logger.Debug("query embedding unavailable, using lexical scoring", zap.Error(err))
		return nil, nil
	}
	if len(vec) == 0 || len(vec) != r.embedder.Dimension() {
		r.logger.Warn("query embedding has unexpected dimension, using lexical scoring",
			zap.Int("got", len(vec)),
			zap.Int("want", r.embedder.Dimension()),
		)
		return nil, nil
	}
	return vec, nil
}

func (r *Retriever) notFound(name string) error {
	available := []string{}
	if infos, err := r.store.List(); err == nil {
		for _, info := range infos {
			available = append(available, info.Filename)
		}
	}
	return &domain.DocumentNotFoundError{Filename: name, Available: available}
}
