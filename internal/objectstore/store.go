// Package objectstore wraps durable blob storage for raw and processed media.
// The store owns bytes addressed by key and knows nothing about job state.
package objectstore

import (
	"context"
	"time"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	SizeBytes    int64
	ContentType  string
	LastModified time.Time
}

// Store is the blob-storage contract the ingestion pipeline depends on.
type Store interface {
	// Put stores body under key with the given content type.
	Put(ctx context.Context, key string, body []byte, contentType string) error
	// Get fetches the full object body.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Head returns object metadata without fetching the body.
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	// List returns metadata for every object under prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Presign issues a time-limited signed URL for direct download.
	Presign(key string, ttl time.Duration) (string, error)
	// URL returns the canonical public URL for key.
	URL(key string) string
}
