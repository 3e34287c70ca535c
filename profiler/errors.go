package profiler

import "errors"

// Configuration errors are returned synchronously to the caller and never
// retried. Discriminate with errors.Is.
var (
	// ErrClosed is returned by every mutating call after Close.
	ErrClosed = errors.New("cpu profiler is closed")

	// ErrCollecting is returned when configuration is changed while the
	// profiler is collecting. Call SetCollecting(false) first.
	ErrCollecting = errors.New("cannot change configuration while collecting")

	// ErrInvalidConfig wraps rejections of out-of-range configuration values.
	ErrInvalidConfig = errors.New("invalid configuration")
)
