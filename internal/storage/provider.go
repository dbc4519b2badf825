// Package storage defines the blob store contract used to archive raw pages
// and the SQL fragments shared by the relational record stores.
package storage

import (
	"context"
	"io"
)

// BlobStore persists raw artifacts and returns a URI describing where they live.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}
