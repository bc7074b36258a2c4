package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStore_Upload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "https://api.example.com/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	asset, err := store.Upload(context.Background(), "videos/out.mp4", strings.NewReader("video-bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if asset.URL != "https://api.example.com/assets/videos/out.mp4" {
		t.Errorf("unexpected URL %s", asset.URL)
	}
	if asset.Key != "videos/out.mp4" {
		t.Errorf("unexpected key %s", asset.Key)
	}

	data, err := os.ReadFile(filepath.Join(dir, "videos", "out.mp4"))
	if err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}
	if string(data) != "video-bytes" {
		t.Errorf("unexpected file contents %q", data)
	}
}

func TestLocalStore_Upload_TraversalKeysStayInside(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "https://api.example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	asset, err := store.Upload(context.Background(), "../../etc/escape.mp4", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path := filepath.Join(dir, asset.Key)
	rel, err := filepath.Rel(dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		t.Errorf("asset escaped the store directory: %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected asset inside store directory: %v", err)
	}
}

func TestLocalStore_Upload_ContextCancelled(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "https://api.example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Upload(ctx, "videos/out.mp4", strings.NewReader("x")); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestNewLocalStore_DefaultDir(t *testing.T) {
	store, err := NewLocalStore("", "https://api.example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.Dir() == "" {
		t.Error("expected a default directory")
	}
}
