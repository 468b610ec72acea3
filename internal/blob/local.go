package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Local implements Store on a local directory, serving objects from a
// configurable public URL base.
type Local struct {
	root    string
	baseURL string
}

// NewLocal creates a disk-backed blob store rooted at dir.
func NewLocal(dir, baseURL string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Local{
		root:    dir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Root returns the directory objects are stored under.
func (l *Local) Root() string {
	return l.root
}

// Put stores the object under bucket/name and returns its public URL.
func (l *Local) Put(ctx context.Context, bucket, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	bucket = cleanSegment(bucket)
	name = cleanSegment(name)
	if bucket == "" || name == "" {
		return "", fmt.Errorf("invalid object path %q/%q", bucket, name)
	}

	dir := filepath.Join(l.root, bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create bucket dir: %w", err)
	}

	// Write through a temp file so a failed upload never leaves a partial
	// object behind a published URL.
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close object: %w", err)
	}

	dst := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("finalize object: %w", err)
	}

	return l.baseURL + "/" + bucket + "/" + name, nil
}

// cleanSegment normalizes a path segment and strips traversal attempts.
func cleanSegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = path.Clean("/" + s)
	return strings.TrimPrefix(s, "/")
}
