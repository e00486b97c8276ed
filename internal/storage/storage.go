// Package storage is the object storage boundary: upload bytes to a path and
// get back a durable URL.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store uploads objects.
type Store interface {
	Put(ctx context.Context, path, contentType string, r io.Reader) (string, error)
}

// FileStore writes objects under a directory that the HTTP server exposes at /files.
type FileStore struct {
	dir     string
	baseURL string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir, baseURL string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir is the root served at /files.
func (s *FileStore) Dir() string { return s.dir }

// Put writes r to path below the root and returns its public URL.
func (s *FileStore) Put(ctx context.Context, path, _ string, r io.Reader) (string, error) {
	clean, err := cleanPath(path)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full := filepath.Join(s.dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	out, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", clean, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		_ = os.Remove(full)
		return "", fmt.Errorf("write %s: %w", clean, err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return s.baseURL + "/files/" + clean, nil
}

// MemoryStore keeps objects in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	types   map[string]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *MemoryStore) Put(_ context.Context, path, contentType string, r io.Reader) (string, error) {
	clean, err := cleanPath(path)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.objects[clean] = buf.Bytes()
	m.types[clean] = contentType
	m.mu.Unlock()
	return "mem://" + clean, nil
}

// Get returns a stored object and its content type.
func (m *MemoryStore) Get(path string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[path]
	return b, m.types[path], ok
}

func cleanPath(p string) (string, error) {
	c := filepath.ToSlash(filepath.Clean("/" + p))
	c = strings.TrimPrefix(c, "/")
	if c == "" || c == "." {
		return "", fmt.Errorf("invalid object path %q", p)
	}
	return c, nil
}
