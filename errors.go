package jarshade

import (
	"errors"
	"fmt"
)

var (
	// ErrArchiveRead is returned when the input is not a well-formed ZIP
	// container or an entry's stream disagrees with its declared size.
	ErrArchiveRead = errors.New("jarshade: archive read failed")

	// ErrClassDecode is returned when a class entry has an unsupported
	// version or a truncated or corrupt payload.
	ErrClassDecode = errors.New("jarshade: class decode failed")

	// ErrClassEncode is returned when a rewritten class no longer fits the
	// class file limits.
	ErrClassEncode = errors.New("jarshade: class encode failed")

	// ErrArchiveWrite is returned on any failure while emitting the output.
	ErrArchiveWrite = errors.New("jarshade: archive write failed")

	// ErrDuplicateEntry is returned when an input archive repeats an entry
	// name, or when relocation maps two entries to the same output name.
	ErrDuplicateEntry = errors.New("jarshade: duplicate entry name")

	// ErrInvalidConfig is returned for an unusable relocation configuration.
	ErrInvalidConfig = errors.New("jarshade: invalid config")
)

// EntryError reports a failure on one archive entry.
//
// It matches both Kind (one of the sentinel errors above) and the
// underlying cause with errors.Is.
type EntryError struct {
	Name string
	Kind error
	Err  error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Name, e.Err)
}

func (e *EntryError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func entryError(kind error, name string, err error) error {
	return &EntryError{Name: name, Kind: kind, Err: err}
}
