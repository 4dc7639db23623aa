package port

import "studyrag/internal/domain"

// DocumentStore holds fully chunked documents keyed by filename.
type DocumentStore interface {
	// Put creates or atomically replaces the document with the same filename.
	Put(doc domain.Document) error

	// Get returns domain.ErrNotFound for an unknown filename.
	Get(filename string) (domain.Document, error)

	// List returns document infos sorted by filename.
	List() ([]domain.DocumentInfo, error)

	// Delete returns domain.ErrNotFound for an unknown filename.
	Delete(filename string) error

	Close() error
}

// SessionStore holds append-only conversations keyed by session id.
type SessionStore interface {
	// AppendTurn creates the session if needed and appends turns contiguously.
	// It returns the new message count.
	AppendTurn(id string, turns ...domain.Message) (int, error)

	// GetHistory returns an empty history for an unknown id.
	GetHistory(id string) ([]domain.Message, error)

	// ListSessions returns summaries sorted by id.
	ListSessions() ([]domain.SessionSummary, error)

	// DeleteSession is a no-op for an unknown id.
	DeleteSession(id string) error

	Close() error
}
