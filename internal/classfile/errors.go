package classfile

import "errors"

var (
	// ErrBadMagic is returned when the payload does not start with 0xCAFEBABE.
	ErrBadMagic = errors.New("classfile: bad magic")

	// ErrUnsupportedVersion is returned for class file versions outside
	// [MinMajorVersion, MaxMajorVersion].
	ErrUnsupportedVersion = errors.New("classfile: unsupported version")

	// ErrTruncated is returned when the payload ends before a structure does.
	ErrTruncated = errors.New("classfile: truncated")

	// ErrMalformed is returned for structurally invalid content: bad constant
	// tags, out-of-range indices, unparseable descriptors or trailing bytes.
	ErrMalformed = errors.New("classfile: malformed")

	// ErrPoolOverflow is returned by Remap or Encode when the rewritten
	// constant pool no longer fits the class file limits.
	ErrPoolOverflow = errors.New("classfile: constant pool overflow")
)
