package chunker

import (
	"fmt"

	"studyrag/internal/domain"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// WindowChunker cuts text into fixed-size windows of runes. Consecutive
// windows share exactly overlap runes.
type WindowChunker struct {
	size    int
	overlap int
}

func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}
	return &WindowChunker{size: size, overlap: overlap}, nil
}

// Validate requires size > overlap >= 0.
func Validate(size, overlap int) error {
	if size <= 0 || overlap < 0 || size <= overlap {
		return fmt.Errorf("%w: chunk size %d must be greater than overlap %d (overlap >= 0)",
			domain.ErrInvalidConfiguration, size, overlap)
	}
	return nil
}

func (c *WindowChunker) Size() int    { return c.size }
func (c *WindowChunker) Overlap() int { return c.overlap }

func (c *WindowChunker) Chunk(filename, text string) []domain.Chunk {
	parts := Split(text, c.size, c.overlap)
	chunks := make([]domain.Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = domain.Chunk{
			DocumentFilename: filename,
			Index:            i,
			Text:             p,
		}
	}
	return chunks
}

// Split returns the window texts for text. It assumes Validate(size, overlap)
// passed. Generation stops after the window that reaches the end of the text.
func Split(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := size - overlap
	var parts []string
	for offset := 0; offset < len(runes); offset += step {
		end := offset + size
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[offset:end]))
		if end == len(runes) {
			break
		}
	}
	return parts
}
