package llm

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"studyrag/internal/domain"
)

// Known OpenAI-compatible providers. Anything else needs an explicit base URL.
var providers = map[string]struct {
	baseURL   string
	keyEnvVar string
}{
	"openai":   {"https://api.openai.com/v1", "OPENAI_API_KEY"},
	"deepseek": {"https://api.deepseek.com/v1", "DEEPSEEK_API_KEY"},
	"local":    {"http://localhost:11434/v1", ""},
}

type Options struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKeyEnv   string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
	// RPM caps requests per minute; 0 leaves calls unpaced.
	RPM int
}

// Stats tracks usage of a model client.
type Stats struct {
	TotalCalls       int
	TotalInputChars  int
	TotalOutputChars int
}

// OpenAIModel generates completions through the chat completions API of any
// OpenAI-compatible endpoint.
type OpenAIModel struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	limiter     *rate.Limiter

	mu    sync.Mutex
	stats Stats
}

func NewOpenAIModel(opts Options) (*OpenAIModel, error) {
	p, known := providers[opts.Provider]
	baseURL := opts.BaseURL
	if baseURL == "" {
		if !known {
			return nil, fmt.Errorf("%w: unknown llm provider %q (set llm.base_url for custom endpoints)",
				domain.ErrInvalidConfiguration, opts.Provider)
		}
		baseURL = p.baseURL
	}

	keyEnv := opts.APIKeyEnv
	if keyEnv == "" {
		keyEnv = p.keyEnvVar
	}
	apiKey := ""
	if keyEnv != "" {
		apiKey = strings.TrimSpace(os.Getenv(keyEnv))
		if apiKey == "" && baseURL == providers["openai"].baseURL {
			return nil, fmt.Errorf("%w: API key not found. Set %s environment variable",
				domain.ErrInvalidConfiguration, keyEnv)
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	model := opts.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	m := &OpenAIModel{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}
	if opts.RPM > 0 {
		m.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RPM)), 1)
	}
	return m, nil
}

func (m *OpenAIModel) Generate(ctx context.Context, prompt string) (string, error) {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("waiting for rate limit: %w", err)
		}
	}
	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   m.maxTokens,
		Temperature: m.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from model %s", m.model)
	}

	output := resp.Choices[0].Message.Content

	m.mu.Lock()
	m.stats.TotalCalls++
	m.stats.TotalInputChars += len(prompt)
	m.stats.TotalOutputChars += len(output)
	m.mu.Unlock()

	return output, nil
}

func (m *OpenAIModel) ModelName() string {
	return m.model
}

func (m *OpenAIModel) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
