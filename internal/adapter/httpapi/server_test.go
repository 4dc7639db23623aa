package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrag/internal/adapter/analyzer"
	"studyrag/internal/adapter/chunker"
	"studyrag/internal/adapter/embedding"
	"studyrag/internal/adapter/memstore"
	"studyrag/internal/adapter/metrics"
	"studyrag/internal/adapter/retriever"
	"studyrag/internal/usecase"
)

type stubLLM struct {
	response string
	err      error
}

func (s *stubLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return s.response, s.err
}

func (s *stubLLM) ModelName() string { return "stub" }

func newTestServer(t *testing.T, llm *stubLLM) http.Handler {
	t.Helper()
	c, err := chunker.NewWindowChunker(200, 20)
	require.NoError(t, err)

	docs := memstore.NewDocumentStore()
	sessions := memstore.NewSessionStore()
	emb := embedding.NewHashEmbedder(64)
	m := metrics.New()

	documents := usecase.NewDocumentService(docs, c, emb, nil, m)
	ret := retriever.New(docs, emb, retriever.NewScorer(analyzer.NewTokenizer(true)), nil, m)
	answers := usecase.NewAnswerPipeline(ret, sessions, llm, 3, nil, m)
	study := usecase.NewStudyTools(docs, ret, llm, 1000, 1000, nil, m)
	svc := usecase.NewService(documents, answers, study, nil, ret, sessions, usecase.ServiceOptions{TopK: 3, PreviewChars: 50})

	return New(svc, m, nil, Options{MaxUploadBytes: 1024}).Handler()
}

func upload(t *testing.T, h http.Handler, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func do(h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestUploadAndDocuments(t *testing.T) {
	h := newTestServer(t, &stubLLM{response: "ok"})

	rec := upload(t, h, "bio.txt", []byte("Mitochondria produce ATP."))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "bio.txt", body["filename"])
	assert.EqualValues(t, 1, body["chunks_created"])
	assert.EqualValues(t, 1, body["embedding_count"])

	rec = do(h, http.MethodGet, "/documents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["documents"], 1)

	rec = do(h, http.MethodGet, "/debug/chunks/bio.txt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["has_embeddings"])

	rec = do(h, http.MethodDelete, "/documents/bio.txt", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodGet, "/documents/bio.txt", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpload_NestedFilename(t *testing.T) {
	h := newTestServer(t, &stubLLM{response: "ok"})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("filename", "unit1/ch1.txt"))
	fw, err := mw.CreateFormFile("file", "ch1.txt")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("chapter one"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(h, http.MethodGet, "/documents/unit1/ch1.txt", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpload_Rejections(t *testing.T) {
	h := newTestServer(t, &stubLLM{response: "ok"})

	rec := upload(t, h, "blob.bin", []byte{0x00, 0xff, 0xfe})
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = upload(t, h, "big.txt", []byte(strings.Repeat("x", 4096)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = do(h, http.MethodPost, "/upload", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat(t *testing.T) {
	h := newTestServer(t, &stubLLM{response: "ATP."})
	require.Equal(t, http.StatusOK, upload(t, h, "bio.txt", []byte("Mitochondria produce ATP.")).Code)

	rec := do(h, http.MethodPost, "/chat", map[string]any{
		"message":       "What do mitochondria produce?",
		"document_name": "bio.txt",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "ATP.", body["response"])
	assert.Equal(t, "default", body["session_id"])
	assert.EqualValues(t, 2, body["message_count"])
	assert.Equal(t, []any{"bio.txt"}, body["documents_used"])

	rec = do(h, http.MethodGet, "/conversations/default", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decodeBody(t, rec)["message_count"])

	rec = do(h, http.MethodGet, "/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["conversations"], 1)

	rec = do(h, http.MethodDelete, "/conversations/default", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChat_UnknownDocument(t *testing.T) {
	h := newTestServer(t, &stubLLM{response: "ok"})
	require.Equal(t, http.StatusOK, upload(t, h, "bio.txt", []byte("cells")).Code)

	rec := do(h, http.MethodPost, "/chat", map[string]any{"message": "q", "document_name": "nope.txt"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body["message"], "nope.txt")
	assert.Equal(t, []any{"bio.txt"}, body["available_documents"])
}

func TestChat_ModelFailure(t *testing.T) {
	h := newTestServer(t, &stubLLM{err: errors.New("upstream down")})

	rec := do(h, http.MethodPost, "/chat", map[string]any{"message": "q"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = do(h, http.MethodGet, "/conversations/default", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decodeBody(t, rec)["message_count"])
}

func TestChat_BadRequests(t *testing.T) {
	h := newTestServer(t, &stubLLM{response: "ok"})

	rec := do(h, http.MethodPost, "/chat", map[string]any{"message": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("{not json"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummarizeAndQuiz(t *testing.T) {
	llm := &stubLLM{response: "short"}
	h := newTestServer(t, llm)
	require.Equal(t, http.StatusOK, upload(t, h, "bio.txt", []byte("Mitochondria produce ATP in cells.")).Code)

	rec := do(h, http.MethodPost, "/summarize/bio.txt", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "short", decodeBody(t, rec)["summary"])

	rec = do(h, http.MethodPost, "/summarize/missing.txt", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	llm.response = `{"questions": [{"type": "short_answer", "question": "What makes ATP?", "correct_answer": "Mitochondria"}]}`
	rec = do(h, http.MethodPost, "/generate-quiz", map[string]any{"num_questions": 5, "use_all_documents": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decodeBody(t, rec)["questions"], 1)

	rec = do(h, http.MethodPost, "/generate-quiz", map[string]any{"num_questions": 2, "use_all_documents": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRootAndMetrics(t *testing.T) {
	h := newTestServer(t, &stubLLM{response: "ok"})

	rec := do(h, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, http.StatusOK, upload(t, h, "a.txt", []byte("alpha")).Code)
	rec = do(h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "studyrag_")

	rec = do(h, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
