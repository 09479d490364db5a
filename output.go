package jarshade

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/meigma/jarshade/internal/file"
)

// MediaTypeJavaArchive is the media type recorded in result descriptors.
const MediaTypeJavaArchive = "application/java-archive"

const (
	jarSuffix    = ".jar"
	outputSuffix = "-repackaged"
)

// OutputName returns the file name of the shaded form of input:
// "X.jar" becomes "X-repackaged.jar" and any other name gets "-repackaged"
// appended. Only the base name of input is used.
func OutputName(input string) string {
	base := filepath.Base(input)
	if stem, ok := strings.CutSuffix(base, jarSuffix); ok {
		return stem + outputSuffix + jarSuffix
	}
	return base + outputSuffix
}

// Result describes one shaded archive written to disk.
type Result struct {
	// Input is the path of the source archive.
	Input string

	// Output is the path of the shaded archive.
	Output string

	// Descriptor identifies the output bytes for publishing.
	Descriptor ocispec.Descriptor

	// Stats is zero apart from the byte counts when Cached is set.
	Stats Stats

	// Cached reports whether the output was copied from the result cache.
	Cached bool
}

// ShadeFile shades the archive at input into outDir under OutputName(input).
//
// The output is written to a temporary file and renamed into place only
// after the whole archive succeeded; on failure no output file is left
// behind and any existing file at the output path is untouched.
func (s *Shader) ShadeFile(ctx context.Context, input, outDir string) (Result, error) {
	res := Result{
		Input:  input,
		Output: filepath.Join(outDir, OutputName(input)),
	}
	log := s.log().With("archive", input)

	f, err := os.Open(input) //nolint:gosec // caller-supplied input path
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrArchiveRead, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrArchiveRead, err)
	}
	res.Stats.BytesIn = info.Size()

	var key digest.Digest
	if s.cache != nil {
		inDigest, err := digest.Canonical.FromReader(io.NewSectionReader(f, 0, info.Size()))
		if err != nil {
			return res, fmt.Errorf("%w: %w", ErrArchiveRead, err)
		}
		key = s.cacheKey(inDigest)
	}

	out, err := file.CreateAtomic(res.Output)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrArchiveWrite, err)
	}
	defer out.Abort()

	digester := digest.Canonical.Digester()
	w := io.MultiWriter(out, digester.Hash())

	if key != "" {
		if n, ok, err := s.copyCached(ctx, key, w); err != nil {
			return res, err
		} else if ok {
			res.Cached = true
			res.Stats.BytesOut = n
			log.Info("served shaded archive from cache", "key", key)
			s.report(ProgressEvent{Stage: StageCached, Archive: input})
		}
	}

	if !res.Cached {
		s.report(ProgressEvent{Stage: StageIndexing, Archive: input})
		a, err := OpenArchive(f, info.Size())
		if err != nil {
			return res, err
		}
		stats, err := s.shadeArchive(ctx, input, a, w)
		stats.BytesIn = info.Size()
		res.Stats = stats
		if err != nil {
			return res, err
		}
	}

	if err := out.Commit(); err != nil {
		return res, fmt.Errorf("%w: %w", ErrArchiveWrite, err)
	}
	res.Descriptor = ocispec.Descriptor{
		MediaType: MediaTypeJavaArchive,
		Digest:    digester.Digest(),
		Size:      res.Stats.BytesOut,
	}

	if key != "" && !res.Cached {
		s.storeCached(key, res.Output)
	}
	return res, nil
}

// cacheKey combines the input digest with everything else that determines
// the output bytes.
func (s *Shader) cacheKey(input digest.Digest) digest.Digest {
	return digest.FromString(fmt.Sprintf("%s\n%s\nlevel=%d", input, s.cfg.Digest(), s.level))
}

func (s *Shader) copyCached(ctx context.Context, key digest.Digest, w io.Writer) (int64, bool, error) {
	cached, ok := s.cache.Get(key)
	if !ok {
		return 0, false, nil
	}
	defer cached.Close()
	n, err := file.CopyWithContext(ctx, w, cached, nil)
	if err != nil {
		return 0, false, fmt.Errorf("%w: copy cached archive: %w", ErrArchiveWrite, err)
	}
	return int64(min(n, 1<<62)), true, nil //nolint:gosec // clamped above
}

// storeCached adds a finished output to the cache. Failures only cost a
// future cache miss, so they are logged and dropped.
func (s *Shader) storeCached(key digest.Digest, path string) {
	f, err := os.Open(path) //nolint:gosec // path was just written by ShadeFile
	if err != nil {
		s.log().Warn("cache store failed", "key", key, "error", err)
		return
	}
	defer f.Close()
	if err := s.cache.Put(key, f); err != nil {
		s.log().Warn("cache store failed", "key", key, "error", err)
	}
}
