// Package testutil provides helpers for building archives and class files in
// tests.
package testutil

import (
	"bytes"
	"io"
	"io/fs"
	"sync"
	"time"

	"github.com/opencontainers/go-digest"
)

// MockCache implements a basic concurrency-safe cache for tests.
type MockCache struct {
	mu   sync.RWMutex
	data map[digest.Digest][]byte
	gets int
	puts int
}

// NewMockCache constructs an empty in-memory cache.
func NewMockCache() *MockCache {
	return &MockCache{data: make(map[digest.Digest][]byte)}
}

// Get returns an fs.File for reading cached content.
func (c *MockCache) Get(key digest.Digest) (fs.File, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	data, ok := c.data[key]
	if !ok {
		return nil, false
	}
	return &mockCacheFile{Reader: bytes.NewReader(data), size: int64(len(data))}, true
}

// Put stores content by reading from the provided fs.File.
func (c *MockCache) Put(key digest.Digest, f fs.File) error {
	content, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	c.data[key] = content
	return nil
}

// Delete removes cached content for key.
func (c *MockCache) Delete(key digest.Digest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// MaxBytes returns 0; the mock is unbounded.
func (c *MockCache) MaxBytes() int64 {
	return 0
}

// SizeBytes returns the current cache size in bytes.
func (c *MockCache) SizeBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total int64
	for _, data := range c.data {
		total += int64(len(data))
	}
	return total
}

// Prune drops everything when targetBytes is below the current size.
func (c *MockCache) Prune(targetBytes int64) (int64, error) {
	size := c.SizeBytes()
	if size <= targetBytes {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.data)
	return size, nil
}

// Counts returns the number of Get and Put calls so far.
func (c *MockCache) Counts() (gets, puts int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gets, c.puts
}

// Keys returns the number of stored entries.
func (c *MockCache) Keys() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// mockCacheFile wraps a bytes.Reader to implement fs.File.
type mockCacheFile struct {
	*bytes.Reader
	size int64
}

func (f *mockCacheFile) Stat() (fs.FileInfo, error) {
	return &mockFileInfo{size: f.size}, nil
}

func (f *mockCacheFile) Close() error {
	return nil
}

// mockFileInfo implements fs.FileInfo for mockCacheFile.
type mockFileInfo struct {
	size int64
}

func (fi *mockFileInfo) Name() string       { return "" }
func (fi *mockFileInfo) Size() int64        { return fi.size }
func (fi *mockFileInfo) Mode() fs.FileMode  { return 0o644 }
func (fi *mockFileInfo) ModTime() time.Time { return time.Time{} }
func (fi *mockFileInfo) IsDir() bool        { return false }
func (fi *mockFileInfo) Sys() any           { return nil }
