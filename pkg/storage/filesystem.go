package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStorage persists document files on disk under a base directory.
// Keys are relative paths; the group invite code is used as the leading
// path segment so a group's files live together.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./documents"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create documents directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Save writes the given bytes under the provided key.
func (s *LocalStorage) Save(key string, data []byte) (string, error) {
	path := s.resolve(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare document directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write document file: %w", err)
	}
	return key, nil
}

// SaveStream copies from reader into the file stored under key.
func (s *LocalStorage) SaveStream(key string, r io.Reader) (string, error) {
	path := s.resolve(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare document directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create document file: %w", err)
	}
	defer file.Close() //nolint:errcheck
	if _, err := io.Copy(file, r); err != nil {
		return "", fmt.Errorf("write document stream: %w", err)
	}
	return key, nil
}

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(key string) (*os.File, error) {
	file, err := os.Open(s.resolve(key))
	if err != nil {
		return nil, fmt.Errorf("open document file: %w", err)
	}
	return file, nil
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(key string) error {
	if err := os.Remove(s.resolve(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete document file: %w", err)
	}
	return nil
}

// Path exposes the underlying absolute path (useful for debugging).
func (s *LocalStorage) Path(key string) string {
	return s.resolve(key)
}

func (s *LocalStorage) resolve(key string) string {
	if filepath.IsAbs(key) {
		return key
	}
	return filepath.Join(s.baseDir, key)
}
