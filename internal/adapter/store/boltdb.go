package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"studyrag/internal/domain"
)

var (
	bucketDocs     = []byte("docs")
	bucketChunks   = []byte("chunks")
	bucketSessions = []byte("sessions")
	bucketMeta     = []byte("meta")
	bucketMessages = []byte("messages")
	keySessionMeta = []byte("session")
)

// BoltStore persists documents and sessions in a single bbolt file. Every
// mutating call runs in one Update transaction.
type BoltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketDocs, bucketChunks, bucketSessions, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

type docMeta struct {
	RawText        string    `json:"raw_text"`
	Length         int       `json:"length"`
	ChunkCount     int       `json:"chunk_count"`
	EmbeddingCount int       `json:"embedding_count"`
	CreatedAt      time.Time `json:"created_at"`
}

type chunkRecord struct {
	Text      string           `json:"text"`
	Embedding domain.Embedding `json:"embedding"`
}

func indexKey(i uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, i)
	return key
}

// Put replaces the document and all of its chunks in one transaction.
func (s *BoltStore) Put(doc domain.Document) error {
	if doc.Filename == "" {
		return fmt.Errorf("%w: filename is required", domain.ErrInvalidInput)
	}
	info := doc.Info()
	meta := docMeta{
		RawText:        doc.RawText,
		Length:         info.Length,
		ChunkCount:     info.ChunkCount,
		EmbeddingCount: info.EmbeddingCount,
		CreatedAt:      doc.CreatedAt,
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	key := []byte(doc.Filename)
	return s.db.Update(func(tx *bbolt.Tx) error {
		chunks := tx.Bucket(bucketChunks)
		if chunks.Bucket(key) != nil {
			if err := chunks.DeleteBucket(key); err != nil {
				return fmt.Errorf("failed to drop old chunks: %w", err)
			}
		}
		b, err := chunks.CreateBucket(key)
		if err != nil {
			return fmt.Errorf("failed to create chunk bucket: %w", err)
		}
		for i, c := range doc.Chunks {
			data, err := json.Marshal(chunkRecord{Text: c.Text, Embedding: c.Embedding})
			if err != nil {
				return fmt.Errorf("failed to marshal chunk %d: %w", i, err)
			}
			if err := b.Put(indexKey(uint64(i)), data); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketDocs).Put(key, metaData)
	})
}

func (s *BoltStore) Get(filename string) (domain.Document, error) {
	var doc domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := []byte(filename)
		data := tx.Bucket(bucketDocs).Get(key)
		if data == nil {
			return fmt.Errorf("document %q: %w", filename, domain.ErrNotFound)
		}
		var meta docMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return fmt.Errorf("failed to decode document %q: %w", filename, err)
		}
		doc = domain.Document{
			Filename:  filename,
			RawText:   meta.RawText,
			CreatedAt: meta.CreatedAt,
		}

		b := tx.Bucket(bucketChunks).Bucket(key)
		if b == nil {
			return nil
		}
		doc.Chunks = make([]domain.Chunk, 0, meta.ChunkCount)
		return b.ForEach(func(k, v []byte) error {
			var rec chunkRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to decode chunk: %w", err)
			}
			doc.Chunks = append(doc.Chunks, domain.Chunk{
				DocumentFilename: filename,
				Index:            int(binary.BigEndian.Uint64(k)),
				Text:             rec.Text,
				Embedding:        rec.Embedding,
			})
			return nil
		})
	})
	if err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

// List reads only document metadata; chunk buckets are not touched.
func (s *BoltStore) List() ([]domain.DocumentInfo, error) {
	var infos []domain.DocumentInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocs).ForEach(func(k, v []byte) error {
			var meta docMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return fmt.Errorf("failed to decode document %q: %w", k, err)
			}
			infos = append(infos, domain.DocumentInfo{
				Filename:       string(k),
				Length:         meta.Length,
				ChunkCount:     meta.ChunkCount,
				EmbeddingCount: meta.EmbeddingCount,
				CreatedAt:      meta.CreatedAt,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if infos == nil {
		infos = []domain.DocumentInfo{}
	}
	return infos, nil
}

func (s *BoltStore) Delete(filename string) error {
	key := []byte(filename)
	return s.db.Update(func(tx *bbolt.Tx) error {
		docs := tx.Bucket(bucketDocs)
		if docs.Get(key) == nil {
			return fmt.Errorf("document %q: %w", filename, domain.ErrNotFound)
		}
		if err := docs.Delete(key); err != nil {
			return err
		}
		chunks := tx.Bucket(bucketChunks)
		if chunks.Bucket(key) != nil {
			return chunks.DeleteBucket(key)
		}
		return nil
	})
}

type sessionMeta struct {
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// AppendTurn appends turns under a single Update transaction; bbolt
// serializes writers, so turns from one call stay contiguous.
func (s *BoltStore) AppendTurn(id string, turns ...domain.Message) (int, error) {
	if id == "" {
		return 0, fmt.Errorf("%w: session id is required", domain.ErrInvalidInput)
	}
	for _, t := range turns {
		if !t.Role.IsValid() {
			return 0, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, t.Role)
		}
	}

	var count int
	err := s.db.Update(func(tx *bbolt.Tx) error {
		now := s.now()
		sess, err := tx.Bucket(bucketSessions).CreateBucketIfNotExists([]byte(id))
		if err != nil {
			return fmt.Errorf("failed to create session bucket: %w", err)
		}
		msgs, err := sess.CreateBucketIfNotExists(bucketMessages)
		if err != nil {
			return fmt.Errorf("failed to create messages bucket: %w", err)
		}

		meta := sessionMeta{CreatedAt: now}
		if data := sess.Get(keySessionMeta); data != nil {
			if err := json.Unmarshal(data, &meta); err != nil {
				return fmt.Errorf("failed to decode session %q: %w", id, err)
			}
		}

		for _, t := range turns {
			if t.CreatedAt.IsZero() {
				t.CreatedAt = now
			}
			seq, err := msgs.NextSequence()
			if err != nil {
				return err
			}
			data, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("failed to marshal message: %w", err)
			}
			if err := msgs.Put(indexKey(seq), data); err != nil {
				return err
			}
			meta.MessageCount++
		}

		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		count = meta.MessageCount
		return sess.Put(keySessionMeta, data)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *BoltStore) GetHistory(id string) ([]domain.Message, error) {
	history := []domain.Message{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		sess := tx.Bucket(bucketSessions).Bucket([]byte(id))
		if sess == nil {
			return nil
		}
		msgs := sess.Bucket(bucketMessages)
		if msgs == nil {
			return nil
		}
		return msgs.ForEach(func(_, v []byte) error {
			var m domain.Message
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("failed to decode message: %w", err)
			}
			history = append(history, m)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

func (s *BoltStore) ListSessions() ([]domain.SessionSummary, error) {
	out := []domain.SessionSummary{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		sessions := tx.Bucket(bucketSessions)
		return sessions.ForEach(func(k, v []byte) error {
			if v != nil {
				return nil
			}
			var meta sessionMeta
			if data := sessions.Bucket(k).Get(keySessionMeta); data != nil {
				if err := json.Unmarshal(data, &meta); err != nil {
					return fmt.Errorf("failed to decode session %q: %w", k, err)
				}
			}
			out = append(out, domain.SessionSummary{
				ID:           string(k),
				MessageCount: meta.MessageCount,
				CreatedAt:    meta.CreatedAt,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *BoltStore) DeleteSession(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		sessions := tx.Bucket(bucketSessions)
		if sessions.Bucket([]byte(id)) == nil {
			return nil
		}
		return sessions.DeleteBucket([]byte(id))
	})
}
