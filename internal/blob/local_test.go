package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalPut(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir, "http://localhost/media/")
	if err != nil {
		t.Fatalf("new local: %v", err)
	}

	url, err := l.Put(context.Background(), "dm-a-b", "photo.jpg", strings.NewReader("jpeg bytes"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if url != "http://localhost/media/dm-a-b/photo.jpg" {
		t.Fatalf("unexpected url %q", url)
	}

	data, err := os.ReadFile(filepath.Join(dir, "dm-a-b", "photo.jpg"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "jpeg bytes" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestLocalPutRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir, "http://localhost/media")
	if err != nil {
		t.Fatalf("new local: %v", err)
	}

	url, err := l.Put(context.Background(), "bucket", "../../../name", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if url != "http://localhost/media/bucket/name" {
		t.Fatalf("traversal survived in url %q", url)
	}
	if _, err := os.Stat(filepath.Join(dir, "bucket", "name")); err != nil {
		t.Fatalf("expected object inside the root: %v", err)
	}
}

func TestLocalPutHonorsContext(t *testing.T) {
	l, err := NewLocal(t.TempDir(), "http://localhost/media")
	if err != nil {
		t.Fatalf("new local: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Put(ctx, "bucket", "name", strings.NewReader("x")); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
