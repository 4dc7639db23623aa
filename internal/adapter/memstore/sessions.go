package memstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"studyrag/internal/domain"
)

type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	now      func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*domain.Session),
		now:      time.Now,
	}
}

// AppendTurn appends all turns under one write lock, so turns from a single
// call are never interleaved with another caller's.
func (s *SessionStore) AppendTurn(id string, turns ...domain.Message) (int, error) {
	if id == "" {
		return 0, fmt.Errorf("%w: session id is required", domain.ErrInvalidInput)
	}
	for _, t := range turns {
		if !t.Role.IsValid() {
			return 0, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, t.Role)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &domain.Session{ID: id, CreatedAt: now}
		s.sessions[id] = sess
	}
	for _, t := range turns {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		sess.Messages = append(sess.Messages, t)
	}
	return len(sess.Messages), nil
}

func (s *SessionStore) GetHistory(id string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return []domain.Message{}, nil
	}
	out := make([]domain.Message, len(sess.Messages))
	copy(out, sess.Messages)
	return out, nil
}

func (s *SessionStore) ListSessions() ([]domain.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SessionSummary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, domain.SessionSummary{
			ID:           sess.ID,
			MessageCount: len(sess.Messages),
			CreatedAt:    sess.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *SessionStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *SessionStore) Close() error {
	return nil
}
