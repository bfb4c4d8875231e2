// Package storage stores uploaded files (template PDFs, avatars) and hands out
// URLs for them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned for empty paths and paths escaping the store root.
var ErrInvalidPath = errors.New("invalid storage path")

// PutResult is returned by a successful Put.
type PutResult struct {
	Key string `json:"key"`
}

// Store is the object store contract the rest of the application depends on.
type Store interface {
	// GetURL returns the public URL of path, or "" when nothing is stored there.
	GetURL(ctx context.Context, path string) (string, error)
	// Put writes r to path, replacing any existing object.
	Put(ctx context.Context, path string, r io.Reader) (PutResult, error)
	// Delete removes path. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error
	// Open returns a reader for path.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// LocalStore keeps objects under a directory that the HTTP server exposes at
// BaseURL.
type LocalStore struct {
	Root    string
	BaseURL string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &LocalStore{Root: root, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

// resolve maps an object key to a file under Root.
func (s *LocalStore) resolve(key string) (string, string, error) {
	clean := path.Clean("/" + strings.TrimSpace(key))
	if clean == "/" {
		return "", "", ErrInvalidPath
	}
	clean = strings.TrimPrefix(clean, "/")
	full := filepath.Join(s.Root, filepath.FromSlash(clean))
	rel, err := filepath.Rel(s.Root, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidPath, key)
	}
	return clean, full, nil
}

// GetURL returns the public URL of key under BaseURL, with each path segment
// escaped. A missing file yields an empty URL and no error.
func (s *LocalStore) GetURL(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, full, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(full); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to stat %s: %w", clean, err)
	}

	segments := strings.Split(clean, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.BaseURL + "/" + strings.Join(segments, "/"), nil
}

// Put writes r to key, creating parent directories, and replaces any existing
// object. The returned key is the cleaned form of key.
func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader) (PutResult, error) {
	if err := ctx.Err(); err != nil {
		return PutResult{}, err
	}
	clean, full, err := s.resolve(key)
	if err != nil {
		return PutResult{}, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return PutResult{}, fmt.Errorf("failed to create directory for %s: %w", clean, err)
	}

	// write to a temp file first so readers never see a partial object
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return PutResult{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return PutResult{}, fmt.Errorf("failed to write %s: %w", clean, err)
	}
	if err := tmp.Close(); err != nil {
		return PutResult{}, fmt.Errorf("failed to close %s: %w", clean, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return PutResult{}, fmt.Errorf("failed to store %s: %w", clean, err)
	}
	return PutResult{Key: clean}, nil
}

// Delete removes key. Deleting a missing object is not an error.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean, full, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", clean, err)
	}
	return nil
}

// Open returns a reader for key. The caller closes it.
func (s *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean, full, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", clean, err)
	}
	return f, nil
}
