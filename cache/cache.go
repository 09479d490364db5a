// Package cache defines storage for shaded archives keyed by the digest of
// everything that determines their bytes.
package cache

import (
	"io/fs"

	"github.com/opencontainers/go-digest"
)

// Cache stores shaded archives.
//
// Keys digest the input archive together with the relocation configuration,
// so a hit is valid for as long as the key matches; no further check is
// needed.
//
// Implementations should handle their own size limits and eviction policies.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns an fs.File for reading the cached archive.
	// Returns nil, false if the key is not cached.
	// Each call returns a new file handle (safe for concurrent use).
	Get(key digest.Digest) (fs.File, bool)

	// Put stores content by reading from the provided fs.File.
	// The cache reads the file to completion; caller still owns/closes the file.
	Put(key digest.Digest, f fs.File) error

	// Delete removes the cached archive for key.
	// Implementations should treat missing entries as a no-op.
	Delete(key digest.Digest) error

	// MaxBytes returns the configured cache size limit (0 = unlimited).
	MaxBytes() int64

	// SizeBytes returns the current cache size in bytes.
	SizeBytes() int64

	// Prune removes least recently used entries until the cache is at or
	// below targetBytes. Returns the number of bytes freed.
	Prune(targetBytes int64) (int64, error)
}
