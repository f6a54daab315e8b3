package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "path/page.html", "text/html", bytes.NewReader([]byte("content")))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://path/page.html" {
		t.Fatalf("unexpected uri %s", uri)
	}

	stored, ok := store.GetObject("path/page.html")
	if !ok || string(stored) != "content" {
		t.Fatalf("expected stored content, got %q ok=%v", stored, ok)
	}

	stored[0] = 'C'
	again, _ := store.GetObject("path/page.html")
	if string(again) != "content" {
		t.Fatalf("expected GetObject to return a copy, got %q", again)
	}
}

func TestBlobStoreGetObjectMissing(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	if _, ok := store.GetObject("missing"); ok {
		t.Fatal("expected miss for unknown path")
	}
}
