package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/timmy/topicmodel/internal/domain"
)

// LocalStorage implements ObjectStorage on a directory tree.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates a storage rooted at dir.
func NewLocalStorage(dir string) (*LocalStorage, error) {
	if dir == "" {
		return nil, errors.New("local storage path is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage path: %w", err)
	}
	return &LocalStorage{root: abs}, nil
}

// path maps a key to a file inside root, rejecting keys that escape it.
func (s *LocalStorage) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash("/" + key))
	p := filepath.Join(s.root, clean)
	if p == s.root || !strings.HasPrefix(p, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return p, nil
}

// EnsureBucket creates the root directory.
func (s *LocalStorage) EnsureBucket(_ context.Context) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	return nil
}

// Upload writes to a temporary file and renames it into place.
func (s *LocalStorage) Upload(ctx context.Context, key string, reader io.Reader, _ int64, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to upload object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

// Download opens the object file.
func (s *LocalStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("object %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to download object: %w", err)
	}
	return f, nil
}

// GetURL returns a file URL for the object.
func (s *LocalStorage) GetURL(key string) string {
	p, err := s.path(key)
	if err != nil {
		return ""
	}
	return "file://" + filepath.ToSlash(p)
}

// Delete removes the object file.
func (s *LocalStorage) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Exists checks if the object file exists.
func (s *LocalStorage) Exists(_ context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
}
