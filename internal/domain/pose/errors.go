package pose

import "errors"

// Sentinel errors for pose registration.
var (
	ErrInvalidPose   = errors.New("invalid pose definition")
	ErrDuplicatePose = errors.New("pose already registered")
)
