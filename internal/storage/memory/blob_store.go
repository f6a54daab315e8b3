// Package memory stores blob content in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// BlobStore stores artifacts in-memory and returns pseudo URIs.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		data: make(map[string][]byte),
	}
}

// PutObject persists the content and returns a memory:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	byteData, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = append([]byte(nil), byteData...)
	return fmt.Sprintf("memory://%s", path), nil
}

// GetObject returns a copy of the stored content.
func (s *BlobStore) GetObject(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}
