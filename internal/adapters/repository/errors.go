package repository

import (
	"errors"
	"fmt"
)

// Sentinel kinds for history errors.
var (
	ErrNotFound      = errors.New("practice session not found")
	ErrInvalidRecord = errors.New("invalid practice session")
	ErrNotConfigured = errors.New("storage is not configured")
)

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRecord, reason)
}
