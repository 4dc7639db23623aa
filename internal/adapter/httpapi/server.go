package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"studyrag/internal/adapter/fs"
	"studyrag/internal/adapter/metrics"
	"studyrag/internal/domain"
	"studyrag/internal/usecase"
)

const DefaultMaxUploadBytes = 10 << 20

type Options struct {
	MaxUploadBytes int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Server exposes the study service over JSON HTTP.
type Server struct {
	svc     *usecase.Service
	metrics *metrics.Metrics
	logger  *zap.Logger
	opts    Options
	mux     *http.ServeMux
}

func New(svc *usecase.Service, m *metrics.Metrics, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	s := &Server{svc: svc, metrics: m, logger: logger, opts: opts, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("POST /upload", s.handleUpload)
	s.mux.HandleFunc("GET /documents", s.handleListDocuments)
	s.mux.HandleFunc("GET /documents/{filename...}", s.handleGetDocument)
	s.mux.HandleFunc("DELETE /documents/{filename...}", s.handleDeleteDocument)
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("GET /conversations", s.handleListSessions)
	s.mux.HandleFunc("GET /conversations/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /conversations/{id}", s.handleDeleteSession)
	s.mux.HandleFunc("GET /debug/chunks/{filename...}", s.handleInspectChunks)
	s.mux.HandleFunc("POST /summarize/{filename...}", s.handleSummarize)
	s.mux.HandleFunc("POST /generate-quiz", s.handleQuiz)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

func (s *Server) Handler() http.Handler {
	return s.recoverer(s.mux)
}

// ListenAndServe serves until ctx is canceled, then drains in-flight
// requests for up to five seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
				)
				writeJSON(w, http.StatusInternalServerError, errorBody{Message: "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "studyrag API is running"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.opts.MaxUploadBytes {
		s.fail(w, r, &http.MaxBytesError{Limit: s.opts.MaxUploadBytes})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: multipart field \"file\" is required: %w", domain.ErrInvalidInput, err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: failed to read upload: %w", domain.ErrInvalidInput, err))
		return
	}
	text, err := fs.DecodeText(data)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	filename := r.FormValue("filename")
	if filename == "" {
		filename = header.Filename
	}
	res, err := s.svc.UploadDocument(r.Context(), filename, text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.svc.ListDocuments()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.GetDocument(r.PathValue("filename"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	if err := s.svc.DeleteDocument(name); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("document %s deleted", name)})
}

// scopeRequest is shared by chat and quiz bodies. use_all_documents wins
// over names; no names and no flag selects no documents.
type scopeRequest struct {
	DocumentName    string   `json:"document_name"`
	DocumentNames   []string `json:"document_names"`
	UseAllDocuments bool     `json:"use_all_documents"`
}

func (q scopeRequest) scope() domain.Scope {
	if q.UseAllDocuments {
		return domain.AllDocuments()
	}
	names := append([]string{}, q.DocumentNames...)
	if q.DocumentName != "" {
		names = append(names, q.DocumentName)
	}
	return domain.Documents(names...)
}

type chatRequest struct {
	scopeRequest
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.Chat(r.Context(), req.Message, req.scope(), req.SessionID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.svc.ListSessions()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": sessions})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	h, err := s.svc.GetSessionHistory(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.svc.DeleteSession(id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("conversation %s deleted", id)})
}

func (s *Server) handleInspectChunks(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.InspectChunks(r.PathValue("filename"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Summarize(r.Context(), r.PathValue("filename"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type quizRequest struct {
	scopeRequest
	NumQuestions int    `json:"num_questions"`
	Difficulty   string `json:"difficulty"`
}

func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request) {
	req := quizRequest{NumQuestions: 10, Difficulty: "medium"}
	if !s.decode(w, r, &req) {
		return
	}
	quiz, err := s.svc.GenerateQuiz(r.Context(), usecase.QuizRequest{
		NumQuestions: req.NumQuestions,
		Difficulty:   req.Difficulty,
		Scope:        req.scope(),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.fail(w, r, fmt.Errorf("%w: malformed JSON body: %w", domain.ErrInvalidInput, err))
		return false
	}
	return true
}
