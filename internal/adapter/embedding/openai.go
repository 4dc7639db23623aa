package embedding

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	openai "github.com/sashabaranov/go-openai"

	"studyrag/internal/domain"
)

const defaultBaseURL = "https://api.openai.com/v1"

var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
}

// OpenAIEmbedder embeds text through any OpenAI-compatible /embeddings endpoint.
// When neither the configuration nor the model table gives a dimension, the
// length of the first successful response fixes it for the instance.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension atomic.Int64
}

func NewOpenAIEmbedder(apiKeyEnv, model string, dimension int) (*OpenAIEmbedder, error) {
	return NewOpenAICompatibleEmbedder(apiKeyEnv, model, defaultBaseURL, dimension)
}

// NewOllamaEmbedder talks to a local Ollama server, which needs no API key.
func NewOllamaEmbedder(model, baseURL string, dimension int) *OpenAIEmbedder {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	return newEmbedder("ollama", model, baseURL, dimension)
}

func NewOpenAICompatibleEmbedder(apiKeyEnv, model, baseURL string, dimension int) (*OpenAIEmbedder, error) {
	apiKey := strings.TrimSpace(os.Getenv(apiKeyEnv))
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key not found in environment variable: %s",
			domain.ErrInvalidConfiguration, apiKeyEnv)
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return newEmbedder(apiKey, model, baseURL, dimension), nil
}

func newEmbedder(apiKey, model, baseURL string, dimension int) *OpenAIEmbedder {
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	if dimension <= 0 {
		dimension = modelDimensions[model]
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL

	e := &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
	if dimension > 0 {
		e.dimension.Store(int64(dimension))
	}
	return e
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is empty", domain.ErrEmbeddingUnavailable)
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create embeddings: %w", domain.ErrEmbeddingUnavailable, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: embedding response empty", domain.ErrEmbeddingUnavailable)
	}

	embedding := resp.Data[0].Embedding
	result := make([]float32, len(embedding))
	copy(result, embedding)
	if len(result) > 0 {
		e.dimension.CompareAndSwap(0, int64(len(result)))
	}
	return result, nil
}

// Dimension is 0 until the first response when the model is not known.
func (e *OpenAIEmbedder) Dimension() int {
	return int(e.dimension.Load())
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}
