package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"studyrag/config"
	"studyrag/internal/adapter/analyzer"
	"studyrag/internal/adapter/embedding"
	"studyrag/internal/adapter/retriever"
	"studyrag/internal/adapter/store"
	"studyrag/internal/domain"
	"studyrag/internal/port"
)

func main() {
	dataDir := flag.String("dir", ".", "Path to the studyrag data directory")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 10, "Number of results")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -dir ./notes -q \"query\"")
		fmt.Println("\nReports:")
		fmt.Println("  1. Embedding coverage (how many stored chunks carry a vector)")
		fmt.Println("  2. Strategy mix (vector vs lexical scores in the result)")
		fmt.Println("  3. Score quality (average and top-1 similarity)")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	st, err := store.NewBoltStore(cfg.DBPath(*dataDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	embedder, err := setupEmbedding(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedder not available, scoring lexically: %v\n", err)
		embedder = embedding.Unavailable{}
	}

	docs, err := st.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing documents: %v\n", err)
		os.Exit(1)
	}
	chunks, embedded := 0, 0
	for _, d := range docs {
		chunks += d.ChunkCount
		embedded += d.EmbeddingCount
	}

	fmt.Println("RETRIEVAL BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Documents: %d\n", len(docs))
	fmt.Printf("Chunks:    %d (%d embedded)\n", chunks, embedded)
	fmt.Printf("Model:     %s (dimension %d)\n", embedder.ModelName(), embedder.Dimension())
	fmt.Println()

	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	r := retriever.New(st, embedder, retriever.NewScorer(analyzer.NewTokenizer(cfg.Retrieve.Stopwords)), nil, nil)
	start := time.Now()
	results, err := r.Retrieve(context.Background(), *query, domain.AllDocuments(), *topK)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Retrieval error: %v\n", err)
		os.Exit(1)
	}
	elapsed := time.Since(start)

	if len(results) == 0 {
		fmt.Println("No results: the store is empty.")
		return
	}
	fmt.Printf("Top %d matches in %s:\n\n", len(results), elapsed.Round(time.Millisecond))

	totalScore := 0.0
	strategies := map[domain.Strategy]int{}
	for i, res := range results {
		preview := res.Chunk.Text
		if len([]rune(preview)) > 150 {
			preview = string([]rune(preview)[:150]) + "..."
		}
		preview = strings.ReplaceAll(preview, "\n", " ")

		totalScore += res.Score
		strategies[res.Strategy]++

		fmt.Printf("%d. [%s %s %.3f] %s part %d\n", i+1, rating(res.Score), res.Strategy, res.Score,
			res.Chunk.DocumentFilename, res.Chunk.Index+1)
		fmt.Printf("   %s\n\n", preview)
	}

	avgScore := totalScore / float64(len(results))
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Average score:  %.3f\n", avgScore)
	fmt.Printf("  Top-1 score:    %.3f\n", results[0].Score)
	fmt.Printf("  Vector scored:  %d\n", strategies[domain.StrategyVector])
	fmt.Printf("  Lexical scored: %d\n", strategies[domain.StrategyLexical])

	if avgScore > 0.5 {
		fmt.Println("  Status: GOOD - passages match the query well")
	} else if avgScore > 0.3 {
		fmt.Println("  Status: OK - results are somewhat related")
	} else {
		fmt.Println("  Status: POOR - consider a real embedding model or smaller chunks")
	}
}

func rating(score float64) string {
	switch {
	case score > 0.7:
		return "HIGH"
	case score > 0.5:
		return "GOOD"
	case score > 0.3:
		return "OK"
	}
	return "LOW"
}

func setupEmbedding(cfg *config.Config) (port.Embedder, error) {
	c := cfg.Embedding
	switch c.Provider {
	case "hash":
		return embedding.NewHashEmbedder(c.Dimension), nil
	case "ollama":
		return embedding.NewOllamaEmbedder(c.Model, c.BaseURL, c.Dimension), nil
	case "openai":
		return embedding.NewOpenAICompatibleEmbedder(c.APIKeyEnv, c.Model, c.BaseURL, c.Dimension)
	case "none":
		return embedding.Unavailable{}, nil
	}
	return nil, fmt.Errorf("unsupported provider: %s", c.Provider)
}
