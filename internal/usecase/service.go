package usecase

import (
	"context"
	"errors"

	"studyrag/internal/domain"
	"studyrag/internal/port"
)

// Service is the single entry point used by the CLI and the REST server.
type Service struct {
	documents    *DocumentService
	answers      *AnswerPipeline
	study        *StudyTools
	ingester     *Ingester
	retriever    port.Retriever
	sessions     port.SessionStore
	topK         int
	previewChars int
}

type ServiceOptions struct {
	TopK         int
	PreviewChars int
}

func NewService(
	documents *DocumentService,
	answers *AnswerPipeline,
	study *StudyTools,
	ingester *Ingester,
	retriever port.Retriever,
	sessions port.SessionStore,
	opts ServiceOptions,
) *Service {
	return &Service{
		documents:    documents,
		answers:      answers,
		study:        study,
		ingester:     ingester,
		retriever:    retriever,
		sessions:     sessions,
		topK:         opts.TopK,
		previewChars: opts.PreviewChars,
	}
}

func (s *Service) UploadDocument(ctx context.Context, filename, rawText string) (*UploadResult, error) {
	return s.documents.Upload(ctx, filename, rawText)
}

func (s *Service) ListDocuments() ([]domain.DocumentInfo, error) {
	return s.documents.List()
}

func (s *Service) GetDocument(filename string) (domain.DocumentInfo, error) {
	doc, err := s.documents.Get(filename)
	if err != nil {
		return domain.DocumentInfo{}, err
	}
	return doc.Info(), nil
}

func (s *Service) DeleteDocument(filename string) error {
	return s.documents.Delete(filename)
}

func (s *Service) InspectChunks(filename string) (*ChunkInspection, error) {
	return s.documents.Inspect(filename, s.previewChars)
}

func (s *Service) Chat(ctx context.Context, message string, scope domain.Scope, sessionID string) (*AnswerResult, error) {
	return s.answers.Answer(ctx, message, sessionID, scope)
}

// Retrieve runs retrieval alone. k < 1 uses the configured top-k.
func (s *Service) Retrieve(ctx context.Context, query string, scope domain.Scope, k int) (domain.RetrievalResult, error) {
	if k < 1 {
		k = s.topK
	}
	return s.retriever.Retrieve(ctx, query, scope, k)
}

func (s *Service) ListSessions() ([]domain.SessionSummary, error) {
	return s.sessions.ListSessions()
}

type SessionHistory struct {
	SessionID    string           `json:"session_id"`
	MessageCount int              `json:"message_count"`
	Messages     []domain.Message `json:"messages"`
}

func (s *Service) GetSessionHistory(id string) (*SessionHistory, error) {
	if id == "" {
		id = DefaultSessionID
	}
	msgs, err := s.sessions.GetHistory(id)
	if err != nil {
		return nil, err
	}
	return &SessionHistory{SessionID: id, MessageCount: len(msgs), Messages: msgs}, nil
}

func (s *Service) DeleteSession(id string) error {
	if id == "" {
		id = DefaultSessionID
	}
	return s.sessions.DeleteSession(id)
}

func (s *Service) Summarize(ctx context.Context, filename string) (*SummaryResult, error) {
	return s.study.Summarize(ctx, filename)
}

func (s *Service) GenerateQuiz(ctx context.Context, req QuizRequest) (*Quiz, error) {
	return s.study.GenerateQuiz(ctx, req)
}

func (s *Service) Ingest(ctx context.Context, root string, progress IngestProgress) (*IngestResult, error) {
	if s.ingester == nil {
		return nil, errors.New("ingest is not configured")
	}
	return s.ingester.Ingest(ctx, root, progress)
}

// WatchIngest re-uploads and removes documents as files under root change.
func (s *Service) WatchIngest(ctx context.Context, root string, watcher port.FileWatcher, report func(*IngestResult)) error {
	if s.ingester == nil {
		return errors.New("ingest is not configured")
	}
	return s.ingester.Watch(ctx, root, watcher, report)
}

func (s *Service) Rechunk(ctx context.Context, progress func(filename string)) (int, error) {
	return s.documents.Rechunk(ctx, progress)
}
