// Package storetest holds behavior tests shared by every DocumentStore and
// SessionStore backend.
package storetest

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrag/internal/domain"
	"studyrag/internal/port"
)

func Document(filename, text string, vectors ...[]float32) domain.Document {
	doc := domain.Document{
		Filename:  filename,
		RawText:   text,
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	for i, v := range vectors {
		doc.Chunks = append(doc.Chunks, domain.Chunk{
			DocumentFilename: filename,
			Index:            i,
			Text:             fmt.Sprintf("%s chunk %d", filename, i),
			Embedding:        domain.HasEmbedding(v),
		})
	}
	return doc
}

func RunDocumentStore(t *testing.T, newStore func(t *testing.T) port.DocumentStore) {
	t.Run("PutGet", func(t *testing.T) {
		s := newStore(t)
		doc := Document("bio.txt", "cells and dna", []float32{1, 0}, nil)
		require.NoError(t, s.Put(doc))

		got, err := s.Get("bio.txt")
		require.NoError(t, err)
		assert.Equal(t, "cells and dna", got.RawText)
		require.Len(t, got.Chunks, 2)
		assert.Equal(t, 0, got.Chunks[0].Index)
		assert.True(t, got.Chunks[0].Embedding.Present())
		assert.False(t, got.Chunks[1].Embedding.Present())
		assert.True(t, got.CreatedAt.Equal(doc.CreatedAt))
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get("nope.txt")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("ReplaceIsWhole", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(Document("a.txt", "v1", []float32{1}, []float32{1}, []float32{1})))
		require.NoError(t, s.Put(Document("a.txt", "v2", []float32{2})))

		got, err := s.Get("a.txt")
		require.NoError(t, err)
		assert.Equal(t, "v2", got.RawText)
		assert.Len(t, got.Chunks, 1)
	})

	t.Run("ListSorted", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(Document("b.txt", "bbbb", []float32{1})))
		require.NoError(t, s.Put(Document("a.txt", "aa", []float32{1}, nil)))

		infos, err := s.List()
		require.NoError(t, err)
		require.Len(t, infos, 2)
		assert.Equal(t, "a.txt", infos[0].Filename)
		assert.Equal(t, 2, infos[0].Length)
		assert.Equal(t, 2, infos[0].ChunkCount)
		assert.Equal(t, 1, infos[0].EmbeddingCount)
		assert.Equal(t, "b.txt", infos[1].Filename)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(Document("a.txt", "x", []float32{1})))
		require.NoError(t, s.Delete("a.txt"))

		_, err := s.Get("a.txt")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		assert.True(t, errors.Is(s.Delete("a.txt"), domain.ErrNotFound))

		infos, err := s.List()
		require.NoError(t, err)
		assert.Empty(t, infos)
	})

	t.Run("ConcurrentReplaceIsAtomic", func(t *testing.T) {
		s := newStore(t)
		small := Document("a.txt", "small", []float32{1})
		large := Document("a.txt", "large", []float32{1}, []float32{1}, []float32{1}, []float32{1})
		require.NoError(t, s.Put(small))

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				for j := 0; j < 25; j++ {
					_ = s.Put(large)
					_ = s.Put(small)
				}
			}()
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					got, err := s.Get("a.txt")
					if !assert.NoError(t, err) {
						return
					}
					switch got.RawText {
					case "small":
						assert.Len(t, got.Chunks, 1)
					case "large":
						assert.Len(t, got.Chunks, 4)
					default:
						t.Errorf("unexpected text %q", got.RawText)
					}
				}
			}()
		}
		wg.Wait()
	})
}

func RunSessionStore(t *testing.T, newStore func(t *testing.T) port.SessionStore) {
	user := func(s string) domain.Message { return domain.Message{Role: domain.RoleUser, Content: s} }
	assistant := func(s string) domain.Message { return domain.Message{Role: domain.RoleAssistant, Content: s} }

	t.Run("UnknownIsEmpty", func(t *testing.T) {
		s := newStore(t)
		h, err := s.GetHistory("missing")
		require.NoError(t, err)
		assert.Empty(t, h)
		require.NoError(t, s.DeleteSession("missing"))
	})

	t.Run("AppendInOrder", func(t *testing.T) {
		s := newStore(t)
		n, err := s.AppendTurn("s1", user("q1"), assistant("a1"))
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		a := assistant("a2")
		a.Sources = []string{"bio.txt"}
		n, err = s.AppendTurn("s1", user("q2"), a)
		require.NoError(t, err)
		assert.Equal(t, 4, n)

		h, err := s.GetHistory("s1")
		require.NoError(t, err)
		require.Len(t, h, 4)
		assert.Equal(t, []string{"q1", "a1", "q2", "a2"}, contents(h))
		assert.Equal(t, domain.RoleUser, h[0].Role)
		assert.Equal(t, domain.RoleAssistant, h[1].Role)
		assert.Equal(t, []string{"bio.txt"}, h[3].Sources)
		assert.False(t, h[0].CreatedAt.IsZero())
	})

	t.Run("ListAndDelete", func(t *testing.T) {
		s := newStore(t)
		_, err := s.AppendTurn("b", user("x"))
		require.NoError(t, err)
		_, err = s.AppendTurn("a", user("x"), assistant("y"))
		require.NoError(t, err)

		list, err := s.ListSessions()
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "a", list[0].ID)
		assert.Equal(t, 2, list[0].MessageCount)
		assert.Equal(t, "b", list[1].ID)

		require.NoError(t, s.DeleteSession("a"))
		list, err = s.ListSessions()
		require.NoError(t, err)
		require.Len(t, list, 1)

		h, err := s.GetHistory("a")
		require.NoError(t, err)
		assert.Empty(t, h)
	})

	t.Run("EmptyID", func(t *testing.T) {
		s := newStore(t)
		_, err := s.AppendTurn("", user("q"))
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))

		h, err := s.GetHistory("")
		require.NoError(t, err)
		assert.Empty(t, h)
		require.NoError(t, s.DeleteSession(""))

		list, err := s.ListSessions()
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("InvalidRole", func(t *testing.T) {
		s := newStore(t)
		_, err := s.AppendTurn("s", domain.Message{Role: "system", Content: "x"})
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})

	t.Run("ConcurrentPairsStayContiguous", func(t *testing.T) {
		s := newStore(t)
		const writers, rounds = 4, 10

		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for r := 0; r < rounds; r++ {
					tag := fmt.Sprintf("%d-%d", w, r)
					_, err := s.AppendTurn("shared", user("q"+tag), assistant("a"+tag))
					assert.NoError(t, err)
				}
			}(w)
		}
		wg.Wait()

		h, err := s.GetHistory("shared")
		require.NoError(t, err)
		require.Len(t, h, writers*rounds*2)
		for i := 0; i < len(h); i += 2 {
			require.Equal(t, domain.RoleUser, h[i].Role)
			require.Equal(t, domain.RoleAssistant, h[i+1].Role)
			assert.Equal(t, h[i].Content[1:], h[i+1].Content[1:], "pair at %d interleaved", i)
		}
	})
}

func contents(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}
