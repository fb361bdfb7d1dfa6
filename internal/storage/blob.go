// blob.go - Byte storage backends used underneath FileStore.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrBlobNotFound is returned by Get when the key does not exist.
var ErrBlobNotFound = errors.New("blob not found")

// BlobInfo describes one stored object.
type BlobInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// BlobStore persists opaque byte objects under slash-separated keys. Put
// must be atomic: a reader sees either nothing or the complete object.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	// Location describes where key lives (a path or an s3:// URI).
	Location(key string) string
	Ping(ctx context.Context) error
}
