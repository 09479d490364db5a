package jarshade

import (
	"log/slog"

	"github.com/meigma/jarshade/cache"
)

// DefaultMaxInFlightBytes bounds the decompressed entry data held between
// the rewrite workers and the ordered writer.
const DefaultMaxInFlightBytes = 64 << 20

// Option configures a Shader.
type Option func(*Shader)

// WithLogger sets the logger for shading operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Shader) {
		s.logger = logger
	}
}

// WithWorkers sets the number of entry rewrite workers per archive.
// Zero uses GOMAXPROCS. Values below 2 rewrite entries serially.
func WithWorkers(n int) Option {
	return func(s *Shader) {
		s.workers = n
	}
}

// WithMaxInFlightBytes caps the decompressed entry data buffered between
// rewriting and writing. Zero disables the cap.
func WithMaxInFlightBytes(n int64) Option {
	return func(s *Shader) {
		if n < 0 {
			n = 0
		}
		s.maxInFlight = n
	}
}

// WithCompressionLevel sets the deflate level for rewritten entries, from
// -2 (Huffman only) to 9. Entries stored uncompressed in the input stay
// stored.
func WithCompressionLevel(level int) Option {
	return func(s *Shader) {
		s.level = level
	}
}

// WithProgress sets a callback for progress updates.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Shader) {
		s.progress = fn
	}
}

// WithCache reuses previously shaded outputs for byte-identical inputs under
// the same Config.
func WithCache(c cache.Cache) Option {
	return func(s *Shader) {
		s.cache = c
	}
}

// WithArchiveConcurrency sets how many archives ShadeAll processes at once.
// Values below 1 mean one archive at a time.
func WithArchiveConcurrency(n int) Option {
	return func(s *Shader) {
		if n < 1 {
			n = 1
		}
		s.archiveConcurrency = n
	}
}
