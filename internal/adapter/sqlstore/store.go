// Package sqlstore persists documents and sessions in a single SQLite file.
package sqlstore

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"studyrag/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const jsonNull = "null"

// Store implements port.DocumentStore and port.SessionStore. It holds one
// connection, so every transaction is serialized.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(sub); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies every NNN_name.up.sql newer than the recorded version.
// Each file records its own version in schema_migrations.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}
	return nil
}

// Put replaces the document row and all of its chunk rows in one transaction.
func (s *Store) Put(doc domain.Document) error {
	if doc.Filename == "" {
		return fmt.Errorf("%w: filename is required", domain.ErrInvalidInput)
	}
	info := doc.Info()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM chunks WHERE filename = ?", doc.Filename); err != nil {
		return fmt.Errorf("failed to drop old chunks: %w", err)
	}
	_, err = tx.Exec(`
		INSERT INTO documents (filename, raw_text, length, chunk_count, embedding_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(filename) DO UPDATE SET
			raw_text = excluded.raw_text,
			length = excluded.length,
			chunk_count = excluded.chunk_count,
			embedding_count = excluded.embedding_count,
			created_at = excluded.created_at`,
		doc.Filename, doc.RawText, info.Length, info.ChunkCount, info.EmbeddingCount, formatTime(doc.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO chunks (filename, idx, text, embedding) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, c := range doc.Chunks {
		vec, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal chunk %d: %w", i, err)
		}
		if _, err := stmt.Exec(doc.Filename, i, c.Text, string(vec)); err != nil {
			return fmt.Errorf("failed to write chunk %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (s *Store) Get(filename string) (domain.Document, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return domain.Document{}, err
	}
	defer tx.Rollback()

	var (
		doc     = domain.Document{Filename: filename}
		created string
		count   int
	)
	err = tx.QueryRow("SELECT raw_text, chunk_count, created_at FROM documents WHERE filename = ?", filename).
		Scan(&doc.RawText, &count, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Document{}, fmt.Errorf("document %q: %w", filename, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("failed to read document %q: %w", filename, err)
	}
	if doc.CreatedAt, err = parseTime(created); err != nil {
		return domain.Document{}, err
	}

	rows, err := tx.Query("SELECT idx, text, embedding FROM chunks WHERE filename = ? ORDER BY idx", filename)
	if err != nil {
		return domain.Document{}, err
	}
	defer rows.Close()

	doc.Chunks = make([]domain.Chunk, 0, count)
	for rows.Next() {
		var (
			c   = domain.Chunk{DocumentFilename: filename}
			vec sql.NullString
		)
		if err := rows.Scan(&c.Index, &c.Text, &vec); err != nil {
			return domain.Document{}, err
		}
		if vec.Valid && vec.String != jsonNull {
			if err := json.Unmarshal([]byte(vec.String), &c.Embedding); err != nil {
				return domain.Document{}, fmt.Errorf("failed to decode chunk %d: %w", c.Index, err)
			}
		}
		doc.Chunks = append(doc.Chunks, c)
	}
	if err := rows.Err(); err != nil {
		return domain.Document{}, err
	}
	return doc, tx.Commit()
}

func (s *Store) List() ([]domain.DocumentInfo, error) {
	rows, err := s.db.Query(`
		SELECT filename, length, chunk_count, embedding_count, created_at
		FROM documents ORDER BY filename`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	infos := []domain.DocumentInfo{}
	for rows.Next() {
		var (
			info    domain.DocumentInfo
			created string
		)
		if err := rows.Scan(&info.Filename, &info.Length, &info.ChunkCount, &info.EmbeddingCount, &created); err != nil {
			return nil, err
		}
		if info.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *Store) Delete(filename string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM documents WHERE filename = ?", filename)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %q: %w", filename, domain.ErrNotFound)
	}
	if _, err := tx.Exec("DELETE FROM chunks WHERE filename = ?", filename); err != nil {
		return err
	}
	return tx.Commit()
}

// AppendTurn numbers messages from the stored count, so one call's turns get
// consecutive sequence numbers.
func (s *Store) AppendTurn(id string, turns ...domain.Message) (int, error) {
	if id == "" {
		return 0, fmt.Errorf("%w: session id is required", domain.ErrInvalidInput)
	}
	for _, t := range turns {
		if !t.Role.IsValid() {
			return 0, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, t.Role)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := s.now()
	var count int
	err = tx.QueryRow("SELECT message_count FROM sessions WHERE id = ?", id).Scan(&count)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.Exec("INSERT INTO sessions (id, message_count, created_at) VALUES (?, 0, ?)",
			id, formatTime(now)); err != nil {
			return 0, fmt.Errorf("failed to create session %q: %w", id, err)
		}
	case err != nil:
		return 0, fmt.Errorf("failed to read session %q: %w", id, err)
	}

	for _, t := range turns {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		var sources any
		if len(t.Sources) > 0 {
			data, err := json.Marshal(t.Sources)
			if err != nil {
				return 0, err
			}
			sources = string(data)
		}
		_, err := tx.Exec(`
			INSERT INTO messages (session_id, seq, role, content, sources, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, count, string(t.Role), t.Content, sources, formatTime(t.CreatedAt))
		if err != nil {
			return 0, fmt.Errorf("failed to append message: %w", err)
		}
		count++
	}

	if _, err := tx.Exec("UPDATE sessions SET message_count = ? WHERE id = ?", count, id); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) GetHistory(id string) ([]domain.Message, error) {
	rows, err := s.db.Query(`
		SELECT role, content, sources, created_at
		FROM messages WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []domain.Message{}
	for rows.Next() {
		var (
			m       domain.Message
			role    string
			sources sql.NullString
			created string
		)
		if err := rows.Scan(&role, &m.Content, &sources, &created); err != nil {
			return nil, err
		}
		m.Role = domain.Role(role)
		if sources.Valid {
			if err := json.Unmarshal([]byte(sources.String), &m.Sources); err != nil {
				return nil, fmt.Errorf("failed to decode message sources: %w", err)
			}
		}
		if m.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		history = append(history, m)
	}
	return history, rows.Err()
}

func (s *Store) ListSessions() ([]domain.SessionSummary, error) {
	rows, err := s.db.Query("SELECT id, message_count, created_at FROM sessions ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.SessionSummary{}
	for rows.Next() {
		var (
			sum     domain.SessionSummary
			created string
		)
		if err := rows.Scan(&sum.ID, &sum.MessageCount, &created); err != nil {
			return nil, err
		}
		if sum.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *Store) DeleteSession(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages WHERE session_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM sessions WHERE id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
