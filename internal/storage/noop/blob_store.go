// Package noop discards exported artifacts.
package noop

import (
	"context"
	"fmt"
	"io"
)

// BlobStore drops every object and returns a null:// URI.
type BlobStore struct{}

// NewBlobStore creates a discarding blob store.
func NewBlobStore() BlobStore {
	return BlobStore{}
}

// PutObject drains the reader and discards the content.
func (BlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, data); err != nil {
		return "", fmt.Errorf("drain object data: %w", err)
	}
	return fmt.Sprintf("null://%s", path), nil
}
