package usecase

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"studyrag/internal/domain"
)

//go:embed templates/*.txt
var promptTemplates embed.FS

var prompts = template.Must(
	template.New("prompts").Funcs(templateFuncs()).ParseFS(promptTemplates, "templates/*.txt"),
)

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"inc": func(i int) int { return i + 1 },
		"roleLabel": func(r domain.Role) string {
			if r == domain.RoleAssistant {
				return "Assistant"
			}
			return "Student"
		},
	}
}

type AnswerPromptData struct {
	History  []domain.Message
	Passages domain.RetrievalResult
	Message  string
}

type SummaryPromptData struct {
	Filename  string
	Text      string
	Truncated bool
}

type QuizPromptData struct {
	NumQuestions int
	Difficulty   string
	Sections     []PackedSection
}

func BuildAnswerPrompt(data AnswerPromptData) (string, error) {
	return render("answer_prompt.txt", data)
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}
