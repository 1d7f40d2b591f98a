package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/okian/posture/internal/domain/model"
)

// MemoryStore keeps history in process memory. It backs the service when no
// database path is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	opts   options
	byUser map[string][]model.PracticeSession
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{opts: buildOptions(opts), byUser: make(map[string][]model.PracticeSession)}
}

// Create implements Store.
func (m *MemoryStore) Create(ctx context.Context, userID string, rec model.SessionRecord) (model.PracticeSession, error) {
	if err := ctx.Err(); err != nil {
		return model.PracticeSession{}, err
	}
	if err := validate(userID, rec); err != nil {
		return model.PracticeSession{}, err
	}
	row := newSession(m.opts, userID, rec)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.byUser[row.UserID] = append(m.byUser[row.UserID], row)
	return row, nil
}

// History implements Store.
func (m *MemoryStore) History(ctx context.Context, userID string, limit int) ([]model.PracticeSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	rows := append([]model.PracticeSession(nil), m.byUser[userID]...)
	m.mu.RUnlock()

	// Newest first; later inserts win ties.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.After(rows[j].Date)
		}
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	if n := normalizeLimit(limit); len(rows) > n {
		rows = rows[:n]
	}
	if rows == nil {
		rows = []model.PracticeSession{}
	}
	return rows, nil
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, userID, id string) (model.PracticeSession, error) {
	if err := ctx.Err(); err != nil {
		return model.PracticeSession{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, row := range m.byUser[userID] {
		if row.ID == id {
			return row, nil
		}
	}
	return model.PracticeSession{}, ErrNotFound
}

// Stats implements Store.
func (m *MemoryStore) Stats(ctx context.Context, userID string) (model.PracticeStats, error) {
	if err := ctx.Err(); err != nil {
		return model.PracticeStats{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats model.PracticeStats
	var scoreSum int
	for _, row := range m.byUser[userID] {
		stats.TotalSessions++
		stats.TotalDuration += int64(row.DurationSeconds)
		scoreSum += row.AccuracyScore
	}
	if stats.TotalSessions > 0 {
		stats.AverageScore = scoreSum / stats.TotalSessions
	}
	return stats, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
