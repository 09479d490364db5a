package jarshade

// ProgressEvent represents a progress update while shading an archive.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// Archive is the input being shaded, if known.
	Archive string

	// Entry is the input entry just written, if applicable.
	Entry string

	// EntriesDone is the number of entries written so far.
	EntriesDone int

	// EntriesTotal is the number of entries in the archive.
	// Zero indicates the total is unknown (e.g., during indexing).
	EntriesTotal int
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

const (
	// StageIndexing indicates the central directory is being read.
	StageIndexing ProgressStage = iota

	// StageRewriting indicates entries are being rewritten and written.
	StageRewriting

	// StageCached indicates the output was served from the result cache.
	StageCached

	// StageDone indicates the output archive is complete.
	StageDone
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageIndexing:
		return "indexing"
	case StageRewriting:
		return "rewriting"
	case StageCached:
		return "cached"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates.
// Implementations must be safe for concurrent calls when several archives
// are shaded at once.
type ProgressFunc func(ProgressEvent)
