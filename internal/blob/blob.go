package blob

import (
	"context"
	"io"
)

// Store uploads media objects and returns retrievable public URLs.
// Uploads must complete before any record referencing the URL is written.
type Store interface {
	// Put stores the object under bucket/name and returns its public URL.
	Put(ctx context.Context, bucket, name string, r io.Reader) (string, error)
}
