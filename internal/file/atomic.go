package file

import (
	"errors"
	"os"
	"path/filepath"
)

// AtomicFile is a temporary file that replaces its target on Commit.
// Readers of the target never observe a partially written file.
type AtomicFile struct {
	*os.File

	target string
	done   bool
}

// CreateAtomic creates a temporary file next to target. Parent directories
// are created as needed.
func CreateAtomic(target string) (*AtomicFile, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return nil, err
	}
	return &AtomicFile{File: tmp, target: target}, nil
}

// Commit closes the temporary file and renames it onto the target.
func (f *AtomicFile) Commit() error {
	if f.done {
		return errors.New("atomic file already finished")
	}
	f.done = true
	tmpPath := f.Name()
	if err := f.File.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, f.target); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Abort discards the temporary file. It is a no-op after Commit, so it can
// be deferred unconditionally.
func (f *AtomicFile) Abort() {
	if f.done {
		return
	}
	f.done = true
	f.File.Close()
	os.Remove(f.Name())
}
