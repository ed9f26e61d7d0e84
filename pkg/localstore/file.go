package localstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// FileStore persists each key as one JSON file under a base directory.
type FileStore struct {
	baseDir string
}

// NewFileStore ensures the base directory exists and returns a handle.
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		baseDir = "./drafts"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create drafts directory: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// Get reads the file stored for key.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.resolve(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read draft file %s: %w", key, err)
	}
	return data, nil
}

// Put writes value to a temp file, fsyncs it and renames it over the target so a
// crash never leaves a half-written collection behind.
func (s *FileStore) Put(_ context.Context, key string, value []byte) error {
	path := s.resolve(key)
	tmp, err := os.CreateTemp(s.baseDir, ".draft-*")
	if err != nil {
		return fmt.Errorf("create temp draft file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(value); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("write draft file %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("sync draft file %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close draft file %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("commit draft file %s: %w", key, err)
	}
	return nil
}

// Delete removes the stored file if present.
func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.resolve(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete draft file %s: %w", key, err)
	}
	return nil
}

// Path exposes the file backing key (useful for debugging).
func (s *FileStore) Path(key string) string {
	return s.resolve(key)
}

func (s *FileStore) resolve(key string) string {
	return filepath.Join(s.baseDir, url.PathEscape(key)+".json")
}
