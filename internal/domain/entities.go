package domain

import (
	"encoding/json"
	"time"
)

// Document is an uploaded text together with its chunks.
type Document struct {
	Filename  string
	RawText   string
	Chunks    []Chunk
	CreatedAt time.Time
}

// Length returns the length of the raw text in characters.
func (d Document) Length() int {
	return len([]rune(d.RawText))
}

// EmbeddingCount returns how many chunks carry an embedding.
func (d Document) EmbeddingCount() int {
	n := 0
	for _, c := range d.Chunks {
		if c.Embedding.Present() {
			n++
		}
	}
	return n
}

// Chunk is an overlapping passage of a document and the unit of retrieval.
type Chunk struct {
	DocumentFilename string    `json:"document_filename"`
	Index            int       `json:"index"`
	Text             string    `json:"text"`
	Embedding        Embedding `json:"embedding"`
}

// Embedding is either HasEmbedding(vector) or NoEmbedding. The zero value is NoEmbedding.
type Embedding struct {
	vector  []float32
	present bool
}

// HasEmbedding wraps a vector. An empty vector yields NoEmbedding.
func HasEmbedding(vector []float32) Embedding {
	if len(vector) == 0 {
		return Embedding{}
	}
	v := make([]float32, len(vector))
	copy(v, vector)
	return Embedding{vector: v, present: true}
}

// NoEmbedding marks a chunk that could not be embedded.
func NoEmbedding() Embedding {
	return Embedding{}
}

// Vector returns the vector and whether one is present. The slice is shared
// and must not be modified.
func (e Embedding) Vector() ([]float32, bool) {
	return e.vector, e.present
}

func (e Embedding) Present() bool {
	return e.present
}

// Dimension is 0 for NoEmbedding.
func (e Embedding) Dimension() int {
	return len(e.vector)
}

func (e Embedding) MarshalJSON() ([]byte, error) {
	if !e.present {
		return []byte("null"), nil
	}
	return json.Marshal(e.vector)
}

func (e *Embedding) UnmarshalJSON(data []byte) error {
	var v []float32
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*e = HasEmbedding(v)
	return nil
}

// Role identifies the author of a session message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one conversation turn.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Sources   []string  `json:"documents_used,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is an append-only conversation.
type Session struct {
	ID        string
	Messages  []Message
	CreatedAt time.Time
}

type SessionSummary struct {
	ID           string    `json:"session_id"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
}

type DocumentInfo struct {
	Filename       string    `json:"filename"`
	Length         int       `json:"length"`
	ChunkCount     int       `json:"chunk_count"`
	EmbeddingCount int       `json:"embedding_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// Info summarizes a document for listings.
func (d Document) Info() DocumentInfo {
	return DocumentInfo{
		Filename:       d.Filename,
		Length:         d.Length(),
		ChunkCount:     len(d.Chunks),
		EmbeddingCount: d.EmbeddingCount(),
		CreatedAt:      d.CreatedAt,
	}
}

// Strategy names the similarity strategy that produced a score.
type Strategy string

const (
	StrategyVector  Strategy = "vector"
	StrategyLexical Strategy = "lexical"
)

type ScoredChunk struct {
	Chunk    Chunk    `json:"chunk"`
	Score    float64  `json:"score"`
	Strategy Strategy `json:"strategy"`
}

// RetrievalResult is sorted by score descending, then chunk index, then filename.
type RetrievalResult []ScoredChunk

// Documents returns the distinct filenames in result order.
func (r RetrievalResult) Documents() []string {
	seen := make(map[string]struct{}, len(r))
	var names []string
	for _, sc := range r {
		if _, ok := seen[sc.Chunk.DocumentFilename]; ok {
			continue
		}
		seen[sc.Chunk.DocumentFilename] = struct{}{}
		names = append(names, sc.Chunk.DocumentFilename)
	}
	return names
}

// ScopeKind selects which documents a request may retrieve from.
type ScopeKind int

const (
	ScopeNone ScopeKind = iota
	ScopeDocuments
	ScopeAll
)

// Scope is the document scope of a retrieval or chat request.
type Scope struct {
	Kind      ScopeKind
	Filenames []string
}

func NoDocuments() Scope {
	return Scope{Kind: ScopeNone}
}

func AllDocuments() Scope {
	return Scope{Kind: ScopeAll}
}

// Documents scopes a request to the named documents. No names means no documents.
func Documents(filenames ...string) Scope {
	if len(filenames) == 0 {
		return NoDocuments()
	}
	return Scope{Kind: ScopeDocuments, Filenames: filenames}
}

func (s Scope) String() string {
	switch s.Kind {
	case ScopeAll:
		return "all"
	case ScopeDocuments:
		return "documents"
	default:
		return "none"
	}
}
