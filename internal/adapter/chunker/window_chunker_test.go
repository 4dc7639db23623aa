package chunker

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrag/internal/domain"
)

func TestWindowChunker_Boundaries(t *testing.T) {
	c, err := NewWindowChunker(DefaultChunkSize, DefaultOverlap)
	require.NoError(t, err)

	var sb strings.Builder
	for i := 0; i < 2300; i++ {
		sb.WriteByte(byte('a' + i%26))
	}
	text := sb.String()

	chunks := c.Chunk("notes.txt", text)
	require.Len(t, chunks, 3)

	assert.Equal(t, text[0:1000], chunks[0].Text)
	assert.Equal(t, text[800:1800], chunks[1].Text)
	assert.Equal(t, text[1600:2300], chunks[2].Text)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, "notes.txt", ch.DocumentFilename)
		assert.False(t, ch.Embedding.Present())
	}
}

func TestWindowChunker_OverlapInvariant(t *testing.T) {
	text := strings.Repeat("The mitochondria is the powerhouse of the cell. ", 97)
	for _, tc := range []struct{ size, overlap int }{
		{1000, 200}, {100, 0}, {50, 49}, {7, 3},
	} {
		parts := Split(text, tc.size, tc.overlap)
		require.NotEmpty(t, parts)
		for i := 0; i+1 < len(parts); i++ {
			cur := []rune(parts[i])
			next := []rune(parts[i+1])
			require.Len(t, cur, tc.size)
			if tc.overlap > 0 {
				assert.Equal(t, string(cur[len(cur)-tc.overlap:]), string(next[:tc.overlap]),
					"size=%d overlap=%d chunk=%d", tc.size, tc.overlap, i)
			}
		}
		assert.Equal(t, text, reassemble(parts, tc.overlap))
	}
}

func TestWindowChunker_ShortAndEmpty(t *testing.T) {
	c, err := NewWindowChunker(1000, 200)
	require.NoError(t, err)

	assert.Empty(t, c.Chunk("empty.txt", ""))

	chunks := c.Chunk("short.txt", "tiny")
	require.Len(t, chunks, 1)
	assert.Equal(t, "tiny", chunks[0].Text)

	exact := strings.Repeat("x", 1000)
	assert.Len(t, c.Chunk("exact.txt", exact), 1)
}

func TestWindowChunker_Runes(t *testing.T) {
	text := strings.Repeat("日本語", 5)
	parts := Split(text, 6, 2)
	require.Len(t, parts, 4)
	assert.Equal(t, "日本語日本語", parts[0])
	assert.Equal(t, text, reassemble(parts, 2))
}

func TestWindowChunker_Deterministic(t *testing.T) {
	text := strings.Repeat("abc def ghi ", 300)
	assert.Equal(t, Split(text, 128, 32), Split(text, 128, 32))
}

func TestNewWindowChunker_InvalidConfiguration(t *testing.T) {
	for _, tc := range []struct{ size, overlap int }{
		{200, 200}, {100, 300}, {0, 0}, {10, -1},
	} {
		_, err := NewWindowChunker(tc.size, tc.overlap)
		assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration), "size=%d overlap=%d", tc.size, tc.overlap)
	}
}

func reassemble(parts []string, overlap int) string {
	var sb strings.Builder
	for i, p := range parts {
		r := []rune(p)
		if i > 0 {
			r = r[overlap:]
		}
		sb.WriteString(string(r))
	}
	return sb.String()
}
