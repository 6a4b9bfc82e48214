package tool

import "errors"

// Failure kinds. Returned errors wrap exactly one of these so callers can
// branch with errors.Is while the message keeps the descriptive detail.
var (
	// ErrSpawn means the subprocess could not be started at all.
	ErrSpawn = errors.New("tool spawn failed")
	// ErrExit means the subprocess exited non-zero without a parseable
	// failure payload.
	ErrExit = errors.New("tool exited with error")
	// ErrBadOutput means the subprocess produced no parseable JSON result.
	ErrBadOutput = errors.New("tool output unparseable")
	// ErrTimeout means the subprocess exceeded its wall-clock budget and
	// was killed.
	ErrTimeout = errors.New("tool timed out")
	// ErrToolReported means the tool ran but reported failure in its
	// payload.
	ErrToolReported = errors.New("tool reported failure")
)
