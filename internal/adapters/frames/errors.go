package frames

import "errors"

// Sentinel errors for frame sources.
var (
	ErrSourceUnavailable = errors.New("frame source unavailable")
	ErrQueueFull         = errors.New("frame queue full")
	ErrSourceStopped     = errors.New("frame source stopped")
)
