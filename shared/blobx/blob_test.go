package blobx

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFSStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore(dir, "http://localhost:8080/media/")
	if err != nil {
		t.Fatalf("new store failed: %v", err)
	}

	url, err := store.Store(context.Background(), []byte("jpeg-bytes"), "patrols/abc/photo_0.jpg")
	if err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if url != "http://localhost:8080/media/patrols/abc/photo_0.jpg" {
		t.Fatalf("unexpected url: %q", url)
	}

	data, err := os.ReadFile(filepath.Join(dir, "patrols", "abc", "photo_0.jpg"))
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestFSStoreDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore(dir, "http://x")
	if err != nil {
		t.Fatalf("new store failed: %v", err)
	}

	if _, err := store.Store(context.Background(), []byte("png-bytes"), "deliveries/d1/sig.png"); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if err := store.Delete(context.Background(), "deliveries/d1/sig.png"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "deliveries", "d1", "sig.png")); !os.IsNotExist(err) {
		t.Fatalf("expected blob to be gone, stat err = %v", err)
	}

	// Deleting twice is a no-op, a traversal path is not.
	if err := store.Delete(context.Background(), "deliveries/d1/sig.png"); err != nil {
		t.Fatalf("second delete failed: %v", err)
	}
	if err := store.Delete(context.Background(), "../escape.png"); err == nil {
		t.Fatalf("expected error for traversal path")
	}
}

func TestFSStoreRejectsBadInput(t *testing.T) {
	store, err := NewFSStore(t.TempDir(), "http://x")
	if err != nil {
		t.Fatalf("new store failed: %v", err)
	}
	if _, err := store.Store(context.Background(), nil, "a.jpg"); err == nil {
		t.Fatalf("expected error for empty blob")
	}
	if _, err := store.Store(context.Background(), []byte("x"), "../escape.jpg"); err == nil {
		t.Fatalf("expected error for traversal path")
	}
	if _, err := store.Store(context.Background(), []byte("x"), ""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
