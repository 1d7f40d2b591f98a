package service

import "errors"

// Sentinel errors for session control.
var (
	ErrAcquisition    = errors.New("frame source could not be acquired")
	ErrAlreadyRunning = errors.New("session already running")
	ErrSessionActive  = errors.New("cannot change pose during a session")
	ErrUnknownPose    = errors.New("unknown pose")
	ErrClosed         = errors.New("practice closed")
)

// ErrNotStarted is returned by service calls made before Start.
var ErrNotStarted = errors.New("service not started")
