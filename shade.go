package jarshade

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"unicode/utf8"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/meigma/jarshade/cache"
	"github.com/meigma/jarshade/internal/batch"
	"github.com/meigma/jarshade/internal/classfile"
	"github.com/meigma/jarshade/internal/file"
)

// ZIP header constants not exported by the zip package.
const (
	zipVersion20 = 20
	flagUTF8     = 0x800
)

// Shader relocates archives under one Config.
//
// A Shader holds no per-archive state and is safe for concurrent use.
type Shader struct {
	cfg                Config
	logger             *slog.Logger
	workers            int
	maxInFlight        int64
	level              int
	progress           ProgressFunc
	cache              cache.Cache
	archiveConcurrency int

	proc *batch.Processor
}

// New creates a Shader for cfg.
func New(cfg Config, opts ...Option) (*Shader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Shader{
		cfg:                cfg,
		maxInFlight:        DefaultMaxInFlightBytes,
		level:              flate.DefaultCompression,
		archiveConcurrency: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.level < flate.HuffmanOnly || s.level > flate.BestCompression {
		return nil, fmt.Errorf("%w: compression level %d out of range", ErrInvalidConfig, s.level)
	}
	if s.workers < 0 {
		return nil, fmt.Errorf("%w: workers must be >= 0", ErrInvalidConfig)
	}
	s.proc = batch.NewProcessor(
		batch.WithWorkers(s.workers),
		batch.WithBudget(s.maxInFlight),
		batch.WithLogger(s.log()),
	)
	return s, nil
}

// Config returns the relocation configuration.
func (s *Shader) Config() Config {
	return s.cfg
}

// log returns the logger, falling back to a discard logger if nil.
func (s *Shader) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

func (s *Shader) report(ev ProgressEvent) {
	if s.progress != nil {
		s.progress(ev)
	}
}

// Stats summarizes one shaded archive.
type Stats struct {
	Entries   int // entries written
	Classes   int // class entries
	Resources int // non-class entries, directories included
	Renamed   int // entries written under a new name
	Rewritten int // class entries whose bytes changed
	BytesIn   int64
	BytesOut  int64
}

// Shade reads the archive in src and writes its shaded form to dst.
//
// Entries are rewritten concurrently and written in input order. On error
// dst holds an incomplete archive; callers writing to a file should discard
// it (ShadeFile does).
func (s *Shader) Shade(ctx context.Context, src io.ReaderAt, size int64, dst io.Writer) (Stats, error) {
	s.report(ProgressEvent{Stage: StageIndexing})
	a, err := OpenArchive(src, size)
	if err != nil {
		return Stats{}, err
	}
	stats, err := s.shadeArchive(ctx, "", a, dst)
	stats.BytesIn = size
	return stats, err
}

// shaded is the transform result for one entry.
type shaded struct {
	entry     *Entry
	name      string
	data      []byte
	rewritten bool
}

func (s *Shader) shadeArchive(ctx context.Context, label string, a *Archive, dst io.Writer) (Stats, error) {
	log := s.log().With("archive", label)
	log.Info("shading archive", "entries", len(a.Entries))

	policy := NewPolicy(s.cfg, a.Index)
	cw := &file.CountingWriter{W: dst}
	zw := zip.NewWriter(cw)
	level := s.level
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, level)
	})

	var stats Stats
	written := make(map[string]string, len(a.Entries))

	transform := func(_ context.Context, _ int, e *Entry) (shaded, error) {
		return s.transform(policy, e)
	}
	weight := func(e *Entry) int64 {
		return int64(min(e.Size(), 1<<62)) //nolint:gosec // clamped above
	}
	emit := func(_ int, out shaded) error {
		if prev, dup := written[out.name]; dup {
			return entryError(ErrArchiveWrite, out.name,
				fmt.Errorf("%w: written for both %s and %s", ErrDuplicateEntry, prev, out.entry.Name))
		}
		written[out.name] = out.entry.Name
		if err := writeEntry(zw, out); err != nil {
			return entryError(ErrArchiveWrite, out.name, err)
		}

		stats.Entries++
		if out.entry.IsClass() {
			stats.Classes++
		} else {
			stats.Resources++
		}
		if out.rewritten {
			stats.Rewritten++
		}
		if out.name != out.entry.Name {
			stats.Renamed++
			log.Debug("renamed entry", "from", out.entry.Name, "to", out.name)
		}
		s.report(ProgressEvent{
			Stage:        StageRewriting,
			Archive:      label,
			Entry:        out.entry.Name,
			EntriesDone:  stats.Entries,
			EntriesTotal: len(a.Entries),
		})
		return nil
	}

	if err := batch.Run(ctx, s.proc, a.Entries, weight, transform, emit); err != nil {
		return stats, err
	}
	if a.Comment != "" {
		if err := zw.SetComment(a.Comment); err != nil {
			return stats, fmt.Errorf("%w: %w", ErrArchiveWrite, err)
		}
	}
	if err := zw.Close(); err != nil {
		return stats, fmt.Errorf("%w: %w", ErrArchiveWrite, err)
	}
	stats.BytesOut = int64(min(cw.N, 1<<62)) //nolint:gosec // clamped above

	log.Info("shaded archive",
		"entries", stats.Entries,
		"renamed", stats.Renamed,
		"rewritten", stats.Rewritten,
		"bytes", stats.BytesOut)
	s.report(ProgressEvent{
		Stage:        StageDone,
		Archive:      label,
		EntriesDone:  stats.Entries,
		EntriesTotal: len(a.Entries),
	})
	return stats, nil
}

// transform reads one entry and computes its output name and payload.
func (s *Shader) transform(policy *Policy, e *Entry) (shaded, error) {
	data, err := e.ReadAll()
	if err != nil {
		return shaded{}, err
	}
	out := shaded{
		entry: e,
		name:  policy.RelocateEntryName(e.Name),
		data:  data,
	}
	if !e.IsClass() || e.IsDir() {
		return out, nil
	}
	out.data, out.rewritten, err = rewriteClass(policy, e.Name, data)
	if err != nil {
		return shaded{}, err
	}
	return out, nil
}

// rewriteClass relocates every symbolic site of a class payload. A class
// with nothing to relocate is returned as the same slice.
func rewriteClass(policy *Policy, name string, data []byte) ([]byte, bool, error) {
	cf, err := classfile.Decode(data)
	if err != nil {
		return nil, false, entryError(ErrClassDecode, name, err)
	}
	changed, err := classfile.Remap(cf, remapper{p: policy})
	if err != nil {
		if errors.Is(err, classfile.ErrPoolOverflow) {
			return nil, false, entryError(ErrClassEncode, name, err)
		}
		return nil, false, entryError(ErrClassDecode, name, err)
	}
	if !changed {
		return data, false, nil
	}
	out, err := cf.Encode()
	if err != nil {
		return nil, false, entryError(ErrClassEncode, name, err)
	}
	return out, true, nil
}

// writeEntry writes one entry with the input's metadata. Stored entries are
// written raw with their sizes and CRC up front; everything else is
// deflated.
func writeEntry(zw *zip.Writer, out shaded) error {
	in := out.entry.file
	fh := &zip.FileHeader{
		Name:           out.name,
		Comment:        in.Comment,
		NonUTF8:        in.NonUTF8,
		CreatorVersion: in.CreatorVersion,
		ExternalAttrs:  in.ExternalAttrs,
		ModifiedTime:   in.ModifiedTime, //nolint:staticcheck // keeps the input's DOS timestamp bit-exact
		ModifiedDate:   in.ModifiedDate, //nolint:staticcheck // keeps the input's DOS timestamp bit-exact
	}

	if in.Method == zip.Store || out.entry.IsDir() {
		fh.Method = zip.Store
		fh.ReaderVersion = zipVersion20
		fh.CreatorVersion = fh.CreatorVersion&0xff00 | zipVersion20
		if !fh.NonUTF8 && needsUTF8Flag(fh.Name+fh.Comment) {
			fh.Flags |= flagUTF8
		}
		fh.CRC32 = crc32.ChecksumIEEE(out.data)
		fh.CompressedSize64 = uint64(len(out.data))
		fh.UncompressedSize64 = uint64(len(out.data))
		w, err := zw.CreateRaw(fh)
		if err != nil {
			return err
		}
		_, err = w.Write(out.data)
		return err
	}

	fh.Method = zip.Deflate
	w, err := zw.CreateHeader(fh)
	if err != nil {
		return err
	}
	_, err = w.Write(out.data)
	return err
}

// needsUTF8Flag reports whether s is valid UTF-8 outside the ASCII range,
// which CreateRaw does not detect on its own.
func needsUTF8Flag(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for i := range len(s) {
		if s[i] >= utf8.RuneSelf {
			return true
		}
	}
	return false
}
