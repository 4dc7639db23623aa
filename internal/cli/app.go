package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"studyrag/config"
	"studyrag/internal/adapter/analyzer"
	"studyrag/internal/adapter/cache"
	"studyrag/internal/adapter/chunker"
	"studyrag/internal/adapter/embedding"
	"studyrag/internal/adapter/fs"
	"studyrag/internal/adapter/llm"
	"studyrag/internal/adapter/memstore"
	"studyrag/internal/adapter/metrics"
	"studyrag/internal/adapter/redisstore"
	"studyrag/internal/adapter/retriever"
	"studyrag/internal/adapter/sqlstore"
	"studyrag/internal/adapter/store"
	"studyrag/internal/port"
	"studyrag/internal/usecase"
)

// app is the wired object graph behind every command.
type app struct {
	cfg     *config.Config
	svc     *usecase.Service
	metrics *metrics.Metrics
	model   port.LLM
	closers []io.Closer
}

func (a *app) Close() error {
	if m, ok := a.model.(*llm.OpenAIModel); ok {
		if st := m.Stats(); st.TotalCalls > 0 {
			log.Debug("language model usage",
				zap.String("model", m.ModelName()),
				zap.Int("calls", st.TotalCalls),
				zap.Int("input_chars", st.TotalInputChars),
				zap.Int("output_chars", st.TotalOutputChars),
			)
		}
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

// openApp builds the service from the loaded config. progress receives
// re-chunking progress when the stored chunks no longer match the config.
func openApp(ctx context.Context, progressOut io.Writer) (*app, error) {
	cfg := GetConfig()
	a := &app{cfg: cfg, metrics: metrics.New()}

	chk, err := chunker.NewWindowChunker(cfg.Chunking.ChunkSize, cfg.Chunking.Overlap)
	if err != nil {
		return nil, err
	}
	emb, err := buildEmbedder(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	model, err := buildLLM(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create language model: %w", err)
	}
	a.model = model

	var bolt *store.BoltStore
	if cfg.Store.Documents == "bolt" || cfg.Store.Sessions == "bolt" {
		if err := config.EnsureDataDir(GetRootDir()); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		bolt, err = store.NewBoltStore(cfg.DBPath(GetRootDir()))
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		a.closers = append(a.closers, bolt)
	}

	var sqlite *sqlstore.Store
	if cfg.Store.Documents == "sqlite" || cfg.Store.Sessions == "sqlite" {
		if err := config.EnsureDataDir(GetRootDir()); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		sqlite, err = sqlstore.New(cfg.SQLiteDBPath(GetRootDir()))
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		a.closers = append(a.closers, sqlite)
	}

	var docs port.DocumentStore
	switch cfg.Store.Documents {
	case "bolt":
		docs = bolt
	case "sqlite":
		docs = sqlite
	default:
		docs = memstore.NewDocumentStore()
	}

	var sessions port.SessionStore
	switch cfg.Store.Sessions {
	case "bolt":
		sessions = bolt
	case "sqlite":
		sessions = sqlite
	case "redis":
		rs, err := redisstore.New(redisstore.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Store.Redis.Prefix,
			Timeout:  cfg.Store.Redis.Timeout,
		})
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		sessions = rs
		a.closers = append(a.closers, rs)
	default:
		sessions = memstore.NewSessionStore()
	}

	tokenizer := analyzer.NewTokenizer(cfg.Retrieve.Stopwords)
	ret := retriever.New(docs, emb, retriever.NewScorer(tokenizer), log, a.metrics)
	documents := usecase.NewDocumentService(docs, chk, emb, log, a.metrics)
	answers := usecase.NewAnswerPipeline(ret, sessions, model, cfg.Retrieve.TopK, log, a.metrics)
	study := usecase.NewStudyTools(docs, ret, model,
		cfg.Study.SummaryInputChars, cfg.Study.QuizContextChars, log, a.metrics)
	ingester := usecase.NewIngester(fs.NewWalker(cfg.Ingest.Includes, cfg.Ingest.Excludes), fs.TextReader{}, documents, log)

	a.svc = usecase.NewService(documents, answers, study, ingester, ret, sessions, usecase.ServiceOptions{
		TopK:         cfg.Retrieve.TopK,
		PreviewChars: cfg.Retrieve.PreviewChars,
	})

	if cfg.Store.Documents == "bolt" {
		if err := migrate(ctx, bolt, documents, progressOut); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	return a, nil
}

// migrate upgrades the bolt schema and re-chunks stored documents when the
// chunking or embedding settings changed since they were written.
func migrate(ctx context.Context, bolt *store.BoltStore, documents *usecase.DocumentService, progressOut io.Writer) error {
	cfg := GetConfig()
	result, err := bolt.CheckMigration(cfg)
	if err != nil {
		return fmt.Errorf("failed to check migration: %w", err)
	}

	if result.NeedsRechunk {
		infos, err := documents.List()
		if err != nil {
			return err
		}
		fmt.Fprintf(progressOut, "Re-chunking %d documents: %s\n", len(infos), result.Reason)
		bar := newProgressBar(progressOut, len(infos), "Re-chunking")
		if _, err := documents.Rechunk(ctx, func(string) { _ = bar.Add(1) }); err != nil {
			return fmt.Errorf("re-chunking failed: %w", err)
		}
	} else if result.NeedsMigration {
		log.Debug("running schema migration", zap.String("reason", result.Reason))
	}

	if result.NeedsRechunk || result.NeedsMigration {
		if err := bolt.Migrate(cfg); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func buildEmbedder(c config.EmbeddingConfig) (port.Embedder, error) {
	var (
		emb port.Embedder
		err error
	)
	switch c.Provider {
	case "hash":
		emb = embedding.NewHashEmbedder(c.Dimension)
	case "openai":
		if c.BaseURL != "" {
			emb, err = embedding.NewOpenAICompatibleEmbedder(c.APIKeyEnv, c.Model, c.BaseURL, c.Dimension)
		} else {
			emb, err = embedding.NewOpenAIEmbedder(c.APIKeyEnv, c.Model, c.Dimension)
		}
	case "ollama":
		emb = embedding.NewOllamaEmbedder(c.Model, c.BaseURL, c.Dimension)
	case "none":
		return embedding.Unavailable{}, nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", c.Provider)
	}
	if err != nil {
		return nil, err
	}

	if c.CacheSize > 0 {
		emb = cache.NewCachedEmbedder(emb, cache.NewEmbeddingCache(c.CacheSize, c.CacheTTL))
	}
	return emb, nil
}

func buildLLM(c config.LLMConfig) (port.LLM, error) {
	if c.Provider == "echo" {
		return llm.Echo{}, nil
	}
	return llm.NewOpenAIModel(llm.Options{
		Provider:    c.Provider,
		Model:       c.Model,
		BaseURL:     c.BaseURL,
		APIKeyEnv:   c.APIKeyEnv,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		Timeout:     c.Timeout,
		RPM:         c.RequestsPerMinute,
	})
}
