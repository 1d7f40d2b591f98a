// Package repository stores practice session history per user.
package repository

import (
	"context"
	"strings"

	"github.com/okian/posture/internal/domain/model"
)

// Default query constants.
const (
	DefaultHistoryLimit = 50
)

// Store provides read/write access to practice history.
type Store interface {
	// Create saves rec for userID and returns the stored row.
	// Returns ErrInvalidRecord if rec fails validation.
	Create(ctx context.Context, userID string, rec model.SessionRecord) (model.PracticeSession, error)

	// History returns up to limit sessions for userID, newest first.
	History(ctx context.Context, userID string, limit int) ([]model.PracticeSession, error)

	// Stats aggregates all sessions of userID.
	Stats(ctx context.Context, userID string) (model.PracticeStats, error)

	// Get returns one session by id. Returns ErrNotFound if it does not
	// exist or belongs to another user.
	Get(ctx context.Context, userID, id string) (model.PracticeSession, error)

	Close() error
}

// validate checks the fields every store requires.
func validate(userID string, rec model.SessionRecord) error {
	switch {
	case strings.TrimSpace(userID) == "":
		return invalid("user id is required")
	case strings.TrimSpace(rec.PoseName) == "":
		return invalid("pose name is required")
	case rec.DurationSeconds < 0:
		return invalid("duration must not be negative")
	case rec.AccuracyScore < 0 || rec.AccuracyScore > 100:
		return invalid("accuracy score must be within 0..100")
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > DefaultHistoryLimit {
		return DefaultHistoryLimit
	}
	return limit
}
