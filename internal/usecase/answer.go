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

const DefaultSessionID = "default"

// AnswerPipeline answers chat messages from retrieved passages and the
// session history, then records the exchange.
type AnswerPipeline struct {
	retriever port.Retriever
	sessions  port.SessionStore
	llm       port.LLM
	topK      int
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewAnswerPipeline(
	retriever port.Retriever,
	sessions port.SessionStore,
	llm port.LLM,
	topK int,
	logger *zap.Logger,
	m *metrics.Metrics,
) *AnswerPipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnswerPipeline{
		retriever: retriever,
		sessions:  sessions,
		llm:       llm,
		topK:      topK,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

type AnswerResult struct {
	Response      string   `json:"response"`
	SessionID     string   `json:"session_id"`
	MessageCount  int      `json:"message_count"`
	DocumentsUsed []string `json:"documents_used"`
}

// Answer runs one chat turn. The user and assistant turns are appended
// together only after the model succeeds; a failed call leaves the session
// untouched and returns a *domain.ModelError.
func (p *AnswerPipeline) Answer(ctx context.Context, message, sessionID string, scope domain.Scope) (*AnswerResult, error) {
	if strings.TrimSpace(message) == "" {
		p.metrics.Chat("invalid")
		return nil, fmt.Errorf("%w: message is required", domain.ErrInvalidInput)
	}
	if sessionID == "" {
		sessionID = DefaultSessionID
	}

	passages, err := p.retriever.Retrieve(ctx, message, scope, p.topK)
	if err != nil {
		p.metrics.Chat("retrieval_error")
		return nil, err
	}

	history, err := p.sessions.GetHistory(sessionID)
	if err != nil {
		p.metrics.Chat("error")
		return nil, fmt.Errorf("failed to load session %q: %w", sessionID, err)
	}

	prompt, err := BuildAnswerPrompt(AnswerPromptData{
		History:  history,
		Passages: passages,
		Message:  message,
	})
	if err != nil {
		return nil, err
	}

	response, err := p.llm.Generate(ctx, prompt)
	if err != nil {
		p.metrics.Chat("model_error")
		p.metrics.ModelFailure("chat")
		p.logger.Error("model call failed",
			zap.String("session", sessionID),
			zap.String("model", p.llm.ModelName()),
			zap.Error(err),
		)
		return nil, &domain.ModelError{Err: err}
	}

	used := passages.Documents()
	if used == nil {
		used = []string{}
	}
	now := p.now()
	count, err := p.sessions.AppendTurn(sessionID,
		domain.Message{Role: domain.RoleUser, Content: message, CreatedAt: now},
		domain.Message{Role: domain.RoleAssistant, Content: response, Sources: used, CreatedAt: now},
	)
	if err != nil {
		p.metrics.Chat("error")
		return nil, fmt.Errorf("failed to record turn in session %q: %w", sessionID, err)
	}

	p.metrics.Chat("ok")
	p.logger.Debug("chat answered",
		zap.String("session", sessionID),
		zap.String("scope", scope.String()),
		zap.Int("passages", len(passages)),
		zap.Strings("documents", used),
	)

	return &AnswerResult{
		Response:      response,
		SessionID:     sessionID,
		MessageCount:  count,
		DocumentsUsed: used,
	}, nil
}
