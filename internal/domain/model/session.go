package model

import "time"

// Evaluation is the raw per-frame outcome of a pose rule.
type Evaluation struct {
	Score    int    // 0..100
	Feedback string // corrective or affirmative message
}

// SessionRecord is the summary persisted to the history service when a
// session ends after the minimum duration.
type SessionRecord struct {
	PoseName        string    `json:"pose_name"`
	DurationSeconds int       `json:"duration_seconds"`
	AccuracyScore   int       `json:"accuracy_score"`
	Timestamp       time.Time `json:"-"`
}

// Snapshot is the state exposed to the host UI.
type Snapshot struct {
	SessionID       string `json:"session_id,omitempty"`
	PoseID          string `json:"pose_id"`
	PoseName        string `json:"pose_name"`
	Score           int    `json:"score"`
	Feedback        string `json:"feedback"`
	DurationSeconds int    `json:"duration_seconds"`
	Active          bool   `json:"active"`
}

// PoseInfo describes a registered pose for listings.
type PoseInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// PracticeSession is a stored history row.
type PracticeSession struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	PoseName        string    `json:"pose_name"`
	DurationSeconds int       `json:"duration_seconds"`
	AccuracyScore   int       `json:"accuracy_score"`
	Date            time.Time `json:"date"`
	CreatedAt       time.Time `json:"created_at"`
}

// PracticeStats aggregates a user's history.
type PracticeStats struct {
	TotalSessions int   `json:"total_sessions"`
	TotalDuration int64 `json:"total_duration"` // seconds
	AverageScore  int   `json:"average_score"`
}
