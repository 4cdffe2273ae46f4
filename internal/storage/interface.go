// Package storage provides object storage backends for trained model artifacts.
package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the object operations used for model artifacts.
type ObjectStorage interface {
	// Upload writes an object, replacing any previous content under key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens an object for reading.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns a location string for an object, for logs and diagnostics.
	GetURL(key string) string

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists.
	Exists(ctx context.Context, key string) (bool, error)

	// EnsureBucket prepares the backing bucket or directory.
	EnsureBucket(ctx context.Context) error
}
