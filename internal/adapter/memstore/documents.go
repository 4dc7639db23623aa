package memstore

import (
	"fmt"
	"sort"
	"sync"

	"studyrag/internal/domain"
)

// DocumentStore keeps documents in process memory. Put swaps in a complete
// document under the write lock, so readers see the old or the new version.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string]domain.Document
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		docs: make(map[string]domain.Document),
	}
}

func (s *DocumentStore) Put(doc domain.Document) error {
	if doc.Filename == "" {
		return fmt.Errorf("%w: filename is required", domain.ErrInvalidInput)
	}
	doc.Chunks = cloneChunks(doc.Chunks)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.Filename] = doc
	return nil
}

func (s *DocumentStore) Get(filename string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[filename]
	if !ok {
		return domain.Document{}, fmt.Errorf("document %q: %w", filename, domain.ErrNotFound)
	}
	doc.Chunks = cloneChunks(doc.Chunks)
	return doc, nil
}

func (s *DocumentStore) List() ([]domain.DocumentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]domain.DocumentInfo, 0, len(s.docs))
	for _, doc := range s.docs {
		infos = append(infos, doc.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Filename < infos[j].Filename
	})
	return infos, nil
}

func (s *DocumentStore) Delete(filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[filename]; !ok {
		return fmt.Errorf("document %q: %w", filename, domain.ErrNotFound)
	}
	delete(s.docs, filename)
	return nil
}

func (s *DocumentStore) Close() error {
	return nil
}

func cloneChunks(chunks []domain.Chunk) []domain.Chunk {
	if chunks == nil {
		return nil
	}
	out := make([]domain.Chunk, len(chunks))
	copy(out, chunks)
	return out
}
