package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"studyrag/internal/adapter/metrics"
	"studyrag/internal/domain"
	"studyrag/internal/port"
)

const (
	MinQuizQuestions = 5
	MaxQuizQuestions = 40
)

var difficulties = map[string]bool{"easy": true, "medium": true, "hard": true}

// ScopeResolver turns a scope into complete document snapshots.
type ScopeResolver interface {
	Candidates(scope domain.Scope) ([]domain.Document, error)
}

// StudyTools summarizes documents and writes quizzes through the model.
type StudyTools struct {
	docs              port.DocumentStore
	resolver          ScopeResolver
	llm               port.LLM
	summaryInputChars int
	quizContextChars  int
	logger            *zap.Logger
	metrics           *metrics.Metrics
}

func NewStudyTools(
	docs port.DocumentStore,
	resolver ScopeResolver,
	llm port.LLM,
	summaryInputChars, quizContextChars int,
	logger *zap.Logger,
	m *metrics.Metrics,
) *StudyTools {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudyTools{
		docs:              docs,
		resolver:          resolver,
		llm:               llm,
		summaryInputChars: summaryInputChars,
		quizContextChars:  quizContextChars,
		logger:            logger,
		metrics:           m,
	}
}

type SummaryResult struct {
	Filename         string `json:"filename"`
	Summary          string `json:"summary"`
	OriginalLength   int    `json:"original_length"`
	SummarizedLength int    `json:"summarized_length"`
	CompressionRatio string `json:"compression_ratio"`
}

func (s *StudyTools) Summarize(ctx context.Context, filename string) (*SummaryResult, error) {
	docs, err := s.resolver.Candidates(domain.Documents(filename))
	if err != nil {
		return nil, err
	}
	doc := docs[0]

	original := doc.Length()
	if strings.TrimSpace(doc.RawText) == "" {
		return nil, fmt.Errorf("%w: document %q is empty", domain.ErrInvalidInput, filename)
	}

	packed := PackDocuments([]domain.Document{doc}, s.summaryInputChars)
	section := packed.Sections[0]
	prompt, err := render("summary_prompt.txt", SummaryPromptData{
		Filename:  doc.Filename,
		Text:      section.Text,
		Truncated: section.Truncated,
	})
	if err != nil {
		return nil, err
	}

	summary, err := s.generate(ctx, "summarize", prompt)
	if err != nil {
		return nil, err
	}
	summary = strings.TrimSpace(summary)

	summarized := len([]rune(summary))
	return &SummaryResult{
		Filename:         doc.Filename,
		Summary:          summary,
		OriginalLength:   original,
		SummarizedLength: summarized,
		CompressionRatio: fmt.Sprintf("%.1f%%", float64(summarized)/float64(original)*100),
	}, nil
}

type QuizRequest struct {
	NumQuestions int          `json:"num_questions"`
	Difficulty   string       `json:"difficulty"`
	Scope        domain.Scope `json:"-"`
}

type Quiz struct {
	Questions     []Question `json:"questions"`
	Difficulty    string     `json:"difficulty"`
	DocumentsUsed []string   `json:"documents_used"`
}

const (
	QuestionMultipleChoice = "multiple_choice"
	QuestionShortAnswer    = "short_answer"
)

type Question struct {
	Type                 string            `json:"type"`
	Question             string            `json:"question"`
	Options              map[string]string `json:"options,omitempty"`
	Correct              string            `json:"correct,omitempty"`
	CorrectAnswer        string            `json:"correct_answer,omitempty"`
	AcceptableVariations []string          `json:"acceptable_variations,omitempty"`
	Explanation          string            `json:"explanation,omitempty"`
}

var optionKeys = []string{"A", "B", "C", "D"}

// Valid reports whether the question is complete for its type.
func (q Question) Valid() bool {
	if strings.TrimSpace(q.Question) == "" {
		return false
	}
	switch q.Type {
	case QuestionMultipleChoice:
		if len(q.Options) != len(optionKeys) {
			return false
		}
		for _, k := range optionKeys {
			if strings.TrimSpace(q.Options[k]) == "" {
				return false
			}
		}
		_, ok := q.Options[q.Correct]
		return ok
	case QuestionShortAnswer:
		return strings.TrimSpace(q.CorrectAnswer) != ""
	}
	return false
}

// Grade checks an answer case-insensitively. Multiple choice answers are
// option keys; short answers match the expected answer or a variation.
func (q Question) Grade(answer string) bool {
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer == "" {
		return false
	}
	if q.Type == QuestionMultipleChoice {
		return answer == strings.ToLower(q.Correct)
	}
	if answer == strings.ToLower(strings.TrimSpace(q.CorrectAnswer)) {
		return true
	}
	for _, v := range q.AcceptableVariations {
		if answer == strings.ToLower(strings.TrimSpace(v)) {
			return true
		}
	}
	return false
}

func (s *StudyTools) GenerateQuiz(ctx context.Context, req QuizRequest) (*Quiz, error) {
	if req.NumQuestions < MinQuizQuestions || req.NumQuestions > MaxQuizQuestions {
		return nil, fmt.Errorf("%w: num_questions must be between %d and %d, got %d",
			domain.ErrInvalidInput, MinQuizQuestions, MaxQuizQuestions, req.NumQuestions)
	}
	difficulty := strings.ToLower(strings.TrimSpace(req.Difficulty))
	if difficulty == "" {
		difficulty = "medium"
	}
	if !difficulties[difficulty] {
		return nil, fmt.Errorf("%w: difficulty must be easy, medium or hard, got %q", domain.ErrInvalidInput, req.Difficulty)
	}
	if req.Scope.Kind == domain.ScopeNone {
		return nil, fmt.Errorf("%w: select a document or all documents", domain.ErrInvalidInput)
	}

	docs, err := s.resolver.Candidates(req.Scope)
	if err != nil {
		return nil, err
	}
	packed := PackDocuments(docs, s.quizContextChars)
	if len(packed.Sections) == 0 {
		return nil, fmt.Errorf("%w: no document text to build a quiz from", domain.ErrInvalidInput)
	}

	prompt, err := render("quiz_prompt.txt", QuizPromptData{
		NumQuestions: req.NumQuestions,
		Difficulty:   difficulty,
		Sections:     packed.Sections,
	})
	if err != nil {
		return nil, err
	}

	raw, err := s.generate(ctx, "quiz", prompt)
	if err != nil {
		return nil, err
	}

	questions, err := ParseQuiz(raw)
	if err != nil {
		s.metrics.ModelFailure("quiz")
		s.logger.Warn("unusable quiz output", zap.Error(err))
		return nil, &domain.ModelError{Err: err}
	}
	if len(questions) > req.NumQuestions {
		questions = questions[:req.NumQuestions]
	}

	used := make([]string, 0, len(packed.Sections))
	for _, sec := range packed.Sections {
		used = append(used, sec.Filename)
	}
	return &Quiz{Questions: questions, Difficulty: difficulty, DocumentsUsed: used}, nil
}

var errNoQuestions = errors.New("model returned no valid questions")

// ParseQuiz extracts the JSON object from model output and keeps the
// well-formed questions.
func ParseQuiz(output string) ([]Question, error) {
	var payload struct {
		Questions []Question `json:"questions"`
	}
	if err := json.Unmarshal([]byte(extractJSON(output)), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse quiz JSON: %w", err)
	}

	valid := make([]Question, 0, len(payload.Questions))
	for _, q := range payload.Questions {
		q.Type = strings.ToLower(strings.TrimSpace(q.Type))
		q.Correct = strings.ToUpper(strings.TrimSpace(q.Correct))
		if q.Valid() {
			valid = append(valid, q)
		}
	}
	if len(valid) == 0 {
		return nil, errNoQuestions
	}
	return valid, nil
}

func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

func (s *StudyTools) generate(ctx context.Context, op, prompt string) (string, error) {
	out, err := s.llm.Generate(ctx, prompt)
	if err != nil {
		s.metrics.ModelFailure(op)
		s.logger.Error("model call failed",
			zap.String("operation", op),
			zap.String("model", s.llm.ModelName()),
			zap.Error(err),
		)
		return "", &domain.ModelError{Err: err}
	}
	return out, nil
}
