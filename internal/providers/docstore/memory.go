package docstore

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// MemoryStore is a test double.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func NewMemory() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, key string, contentType string, r io.Reader) (Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Document{}, err
	}
	s.mu.Lock()
	s.docs[key] = data
	s.mu.Unlock()
	return Document{Key: key, ContentType: contentType, Size: int64(len(data))}, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	data, ok := s.docs[key]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.docs, key)
	s.mu.Unlock()
	return nil
}

// Len reports how many documents are stored. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}
