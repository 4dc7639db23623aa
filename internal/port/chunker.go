package port

import "studyrag/internal/domain"

// Chunker splits a document's raw text into ordered, overlapping chunks.
// Returned chunks carry no embedding.
type Chunker interface {
	Chunk(filename, text string) []domain.Chunk
}
