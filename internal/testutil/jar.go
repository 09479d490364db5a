package testutil

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
)

// FixedTime is the modification time stamped on every built entry.
var FixedTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// JarEntry is one member of a test archive.
type JarEntry struct {
	Name    string
	Data    []byte
	Store   bool // write uncompressed
	Comment string
}

// Class returns a class entry stored under the class's own name.
func Class(b *ClassBuilder) JarEntry {
	return JarEntry{Name: b.Name() + ".class", Data: b.Bytes()}
}

// Resource returns a resource entry.
func Resource(name, content string) JarEntry {
	return JarEntry{Name: name, Data: []byte(content)}
}

// EncodeJar returns a ZIP archive holding entries in order.
func EncodeJar(entries ...JarEntry) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		fh := &zip.FileHeader{
			Name:     e.Name,
			Comment:  e.Comment,
			Method:   zip.Deflate,
			Modified: FixedTime,
		}
		if e.Store {
			fh.Method = zip.Store
		}
		w, err := zw.CreateHeader(fh)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			return nil, fmt.Errorf("write %s: %w", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildJar is EncodeJar for tests.
func BuildJar(tb testing.TB, entries ...JarEntry) []byte {
	tb.Helper()
	data, err := EncodeJar(entries...)
	if err != nil {
		tb.Fatal(err)
	}
	return data
}

// WriteJar builds an archive and writes it to dir/name.
func WriteJar(tb testing.TB, dir, name string, entries ...JarEntry) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, BuildJar(tb, entries...), 0o600); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
	return path
}

// ReadJar returns the entries of an archive in order.
func ReadJar(tb testing.TB, data []byte) []JarEntry {
	tb.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		tb.Fatalf("open archive: %v", err)
	}
	entries := make([]JarEntry, 0, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			tb.Fatalf("open %s: %v", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			tb.Fatalf("read %s: %v", f.Name, err)
		}
		entries = append(entries, JarEntry{
			Name:    f.Name,
			Data:    content,
			Store:   f.Method == zip.Store,
			Comment: f.Comment,
		})
	}
	return entries
}

// ReadJarFile reads and parses the archive at path.
func ReadJarFile(tb testing.TB, path string) []JarEntry {
	tb.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // test path
	if err != nil {
		tb.Fatalf("read %s: %v", path, err)
	}
	return ReadJar(tb, data)
}

// Names returns the entry names in order.
func Names(entries []JarEntry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

// Find returns the entry called name.
func Find(entries []JarEntry, name string) (JarEntry, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}
	return JarEntry{}, false
}
