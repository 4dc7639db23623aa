package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrag/config"
	"studyrag/internal/adapter/cache"
	"studyrag/internal/adapter/embedding"
	"studyrag/internal/domain"
	"studyrag/internal/usecase"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), "studyrag %s", strings.Join(args, " "))
	return out.String()
}

func TestCommands_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	notes := filepath.Join(dir, "bio.txt")
	text := strings.Repeat("Mitochondria produce ATP through cellular respiration. ", 20)
	require.NoError(t, os.WriteFile(notes, []byte(text), 0o644))

	out := execute(t, "--dir", dir, "upload", notes)
	assert.Contains(t, out, "Uploaded bio.txt")

	out = execute(t, "--dir", dir, "docs", "list", "--json")
	var docs []domain.DocumentInfo
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, 2, docs[0].ChunkCount)
	assert.Equal(t, 2, docs[0].EmbeddingCount)

	out = execute(t, "--dir", dir, "chat", "--doc", "bio.txt", "--session", "s1", "What do mitochondria produce?")
	assert.Contains(t, out, "[echo]")
	assert.Contains(t, out, "Sources: bio.txt")

	out = execute(t, "--dir", dir, "sessions", "show", "s1", "--json")
	var history usecase.SessionHistory
	require.NoError(t, json.Unmarshal([]byte(out), &history))
	assert.Equal(t, 2, history.MessageCount)

	// changing the chunk size re-chunks stored documents on the next run
	cfg := config.DefaultConfig()
	cfg.Chunking.ChunkSize = 500
	cfg.Chunking.Overlap = 50
	require.NoError(t, cfg.Save(filepath.Join(dir, "studyrag.yaml")))

	out = execute(t, "--dir", dir, "docs", "show", "bio.txt", "--json")
	var info domain.DocumentInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, 3, info.ChunkCount)

	out = execute(t, "--dir", dir, "docs", "delete", "bio.txt", "--json=false")
	assert.Contains(t, out, "Deleted bio.txt")
}

func TestScopeFlags(t *testing.T) {
	assert.Equal(t, domain.ScopeNone, (&scopeFlags{}).scope().Kind)
	assert.Equal(t, domain.ScopeAll, (&scopeFlags{docs: []string{"a"}, all: true}).scope().Kind)

	s := (&scopeFlags{docs: []string{"a", "b"}}).scope()
	assert.Equal(t, domain.ScopeDocuments, s.Kind)
	assert.Equal(t, []string{"a", "b"}, s.Filenames)
}

func TestBuildEmbedder(t *testing.T) {
	emb, err := buildEmbedder(config.EmbeddingConfig{Provider: "hash", CacheSize: 8, CacheTTL: time.Minute})
	require.NoError(t, err)
	assert.IsType(t, &cache.CachedEmbedder{}, emb)
	assert.Equal(t, embedding.DefaultHashDimension, emb.Dimension())

	emb, err = buildEmbedder(config.EmbeddingConfig{Provider: "none"})
	require.NoError(t, err)
	assert.Equal(t, 0, emb.Dimension())

	t.Setenv("STUDYRAG_TEST_MISSING_KEY", "")
	_, err = buildEmbedder(config.EmbeddingConfig{Provider: "openai", APIKeyEnv: "STUDYRAG_TEST_MISSING_KEY"})
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "<1s", formatDuration(300*time.Millisecond))
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "2m5s", formatDuration(125*time.Second))
	assert.Equal(t, "1h1m", formatDuration(61*time.Minute))
}

func TestTakeQuiz(t *testing.T) {
	quiz := &usecase.Quiz{
		Difficulty: "easy",
		Questions: []usecase.Question{
			{Type: usecase.QuestionMultipleChoice, Question: "Q1", Options: map[string]string{"A": "a", "B": "b", "C": "c", "D": "d"}, Correct: "B"},
			{Type: usecase.QuestionShortAnswer, Question: "Q2", CorrectAnswer: "ATP"},
		},
	}
	var out bytes.Buffer
	require.NoError(t, takeQuiz(strings.NewReader("b\nglucose\n"), &out, quiz))
	assert.Contains(t, out.String(), "Correct!")
	assert.Contains(t, out.String(), "The answer is: ATP")
	assert.Contains(t, out.String(), "Score: 1/2")
}

func TestCommands_SQLiteFromTOML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "studyrag.toml"),
		[]byte("[store]\ndocuments = \"sqlite\"\nsessions = \"sqlite\"\n"), 0o644))
	notes := filepath.Join(dir, "chem.md")
	require.NoError(t, os.WriteFile(notes, []byte("Covalent bonds share electron pairs."), 0o644))

	out := execute(t, "--dir", dir, "upload", notes)
	assert.Contains(t, out, "Uploaded chem.md")
	assert.FileExists(t, filepath.Join(dir, ".studyrag", "studyrag.sqlite"))
	assert.NoFileExists(t, filepath.Join(dir, ".studyrag", "studyrag.db"))

	out = execute(t, "--dir", dir, "chat", "--all", "--session", "s2", "What do covalent bonds share?")
	assert.Contains(t, out, "Sources: chem.md")

	out = execute(t, "--dir", dir, "sessions", "show", "s2", "--json")
	var history usecase.SessionHistory
	require.NoError(t, json.Unmarshal([]byte(out), &history))
	assert.Equal(t, 2, history.MessageCount)
}

func TestPrintSync(t *testing.T) {
	var out bytes.Buffer
	printSync(&out, &usecase.IngestResult{
		Uploaded: []usecase.UploadResult{{Filename: "a.md", ChunkCount: 2}},
		Removed:  []string{"b.md"},
		Errors:   []string{"c.md: permission denied"},
	})
	assert.Contains(t, out.String(), "updated  a.md (2 chunks)")
	assert.Contains(t, out.String(), "removed  b.md")
	assert.Contains(t, out.String(), "error    c.md: permission denied")
}
