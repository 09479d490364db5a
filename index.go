package jarshade

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Entry is one archive member with lazily readable content.
type Entry struct {
	// Name is the slash-separated entry path.
	Name string

	file *zip.File
}

// IsClass reports whether the entry holds a class file.
func (e *Entry) IsClass() bool {
	return strings.HasSuffix(e.Name, classSuffix)
}

// IsDir reports whether the entry is a directory marker.
func (e *Entry) IsDir() bool {
	return strings.HasSuffix(e.Name, "/")
}

// Size returns the declared uncompressed size.
func (e *Entry) Size() uint64 {
	return e.file.UncompressedSize64
}

// ReadAll returns the decompressed content of the entry.
//
// It fails with ErrArchiveRead when the stream is corrupt, fails its
// checksum, or does not match the declared size. ReadAll is safe for
// concurrent use on distinct entries of the same archive.
func (e *Entry) ReadAll() ([]byte, error) {
	rc, err := e.file.Open()
	if err != nil {
		return nil, entryError(ErrArchiveRead, e.Name, err)
	}
	defer rc.Close()

	declared := e.file.UncompressedSize64
	// Read one byte past the declared size to catch oversized streams.
	data, err := io.ReadAll(io.LimitReader(rc, int64(declared)+1)) //nolint:gosec // zip sizes fit in int64
	if err != nil {
		return nil, entryError(ErrArchiveRead, e.Name, err)
	}
	if uint64(len(data)) != declared {
		return nil, entryError(ErrArchiveRead, e.Name,
			fmt.Errorf("declared size %d, stream holds %d bytes", declared, len(data)))
	}
	return data, nil
}

// EntryIndex is the set of entry names in one archive.
type EntryIndex struct {
	names map[string]struct{}
}

// NewEntryIndex builds an index from entry names.
func NewEntryIndex(names ...string) *EntryIndex {
	idx := &EntryIndex{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		idx.names[n] = struct{}{}
	}
	return idx
}

// Has reports whether name is an entry of the archive. A nil index has no
// entries.
func (idx *EntryIndex) Has(name string) bool {
	if idx == nil {
		return false
	}
	_, ok := idx.names[name]
	return ok
}

// Len returns the number of entries.
func (idx *EntryIndex) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.names)
}

// Archive is an opened input archive: its entries in file order and the
// index of their names.
type Archive struct {
	Entries []*Entry
	Index   *EntryIndex
	Comment string

	closer io.Closer
}

// OpenArchive reads the central directory of a ZIP container.
//
// Entry content is not read until Entry.ReadAll is called.
func OpenArchive(r io.ReaderAt, size int64) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArchiveRead, err)
	}
	a := &Archive{
		Entries: make([]*Entry, 0, len(zr.File)),
		Index:   &EntryIndex{names: make(map[string]struct{}, len(zr.File))},
		Comment: zr.Comment,
	}
	for _, f := range zr.File {
		if a.Index.Has(f.Name) {
			return nil, entryError(ErrArchiveRead, f.Name, ErrDuplicateEntry)
		}
		a.Index.names[f.Name] = struct{}{}
		a.Entries = append(a.Entries, &Entry{Name: f.Name, file: f})
	}
	return a, nil
}

// OpenArchiveFile opens the archive at path. The caller must Close it.
func OpenArchiveFile(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArchiveRead, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %w", ErrArchiveRead, err)
	}
	a, err := OpenArchive(f, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	a.closer = f
	return a, nil
}

// Close releases the underlying file, if any.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}
