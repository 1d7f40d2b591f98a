package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/posture/internal/adapters/repository/migrations"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/metrics"
)

const migrationTable = "schema_migrations"

// Option applies a configuration option to a store.
type Option func(*options)

type options struct {
	now   func() time.Time
	newID func() string
}

// WithClock sets the time source for row timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator sets the row id generator.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) {
		if newID != nil {
			o.newID = newID
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// SQLiteStore persists practice history in SQLite.
type SQLiteStore struct {
	sqlDB *sql.DB
	opts  options
}

var _ Store = (*SQLiteStore)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite history store and applies embedded migrations.
func Open(path string, opts ...Option) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB, opts: buildOptions(opts)}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLiteStore) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return ErrNotConfigured
	}
	return nil
}

func observe(op string, start time.Time) {
	metrics.RecordHistoryLatency(op, float64(time.Since(start).Microseconds())/1000)
}

// Create inserts one practice session.
func (s *SQLiteStore) Create(ctx context.Context, userID string, rec model.SessionRecord) (model.PracticeSession, error) {
	defer observe("create", time.Now())
	if err := s.ready(ctx); err != nil {
		return model.PracticeSession{}, err
	}
	if err := validate(userID, rec); err != nil {
		return model.PracticeSession{}, err
	}

	row := newSession(s.opts, userID, rec)
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO practice_sessions (
		   id, user_id, pose_name, duration_seconds, accuracy_score, date, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.ID,
		row.UserID,
		row.PoseName,
		row.DurationSeconds,
		row.AccuracyScore,
		toMillis(row.Date),
		toMillis(row.CreatedAt),
	)
	if err != nil {
		return model.PracticeSession{}, fmt.Errorf("create practice session: %w", err)
	}
	return row, nil
}

// History returns the newest sessions of a user.
func (s *SQLiteStore) History(ctx context.Context, userID string, limit int) ([]model.PracticeSession, error) {
	defer observe("history", time.Now())
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, user_id, pose_name, duration_seconds, accuracy_score, date, created_at
		   FROM practice_sessions
		  WHERE user_id = ?
		  ORDER BY date DESC, created_at DESC, rowid DESC
		  LIMIT ?`,
		userID,
		normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list practice sessions: %w", err)
	}
	defer rows.Close()

	out := make([]model.PracticeSession, 0)
	for rows.Next() {
		ps, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan practice session: %w", err)
		}
		out = append(out, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate practice sessions: %w", err)
	}
	return out, nil
}

// Get returns one session of a user.
func (s *SQLiteStore) Get(ctx context.Context, userID, id string) (model.PracticeSession, error) {
	defer observe("get", time.Now())
	if err := s.ready(ctx); err != nil {
		return model.PracticeSession{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, user_id, pose_name, duration_seconds, accuracy_score, date, created_at
		   FROM practice_sessions
		  WHERE user_id = ? AND id = ?`,
		userID,
		id,
	)
	ps, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PracticeSession{}, ErrNotFound
		}
		return model.PracticeSession{}, fmt.Errorf("get practice session: %w", err)
	}
	return ps, nil
}

// Stats aggregates a user's sessions.
func (s *SQLiteStore) Stats(ctx context.Context, userID string) (model.PracticeStats, error) {
	defer observe("stats", time.Now())
	if err := s.ready(ctx); err != nil {
		return model.PracticeStats{}, err
	}

	var stats model.PracticeStats
	var avg float64
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT COUNT(*), COALESCE(SUM(duration_seconds), 0), COALESCE(AVG(accuracy_score), 0)
		   FROM practice_sessions
		  WHERE user_id = ?`,
		userID,
	).Scan(&stats.TotalSessions, &stats.TotalDuration, &avg)
	if err != nil {
		return model.PracticeStats{}, fmt.Errorf("practice stats: %w", err)
	}
	stats.AverageScore = int(avg)
	return stats, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (model.PracticeSession, error) {
	var ps model.PracticeSession
	var date, createdAt int64
	if err := row.Scan(&ps.ID, &ps.UserID, &ps.PoseName, &ps.DurationSeconds, &ps.AccuracyScore, &date, &createdAt); err != nil {
		return model.PracticeSession{}, err
	}
	ps.Date = fromMillis(date)
	ps.CreatedAt = fromMillis(createdAt)
	return ps, nil
}

// newSession builds the stored row; the session date is the stop time of
// the record when known, otherwise the save time.
func newSession(o options, userID string, rec model.SessionRecord) model.PracticeSession {
	now := o.now().UTC()
	date := rec.Timestamp.UTC()
	if rec.Timestamp.IsZero() {
		date = now
	}
	return model.PracticeSession{
		ID:              o.newID(),
		UserID:          strings.TrimSpace(userID),
		PoseName:        strings.TrimSpace(rec.PoseName),
		DurationSeconds: rec.DurationSeconds,
		AccuracyScore:   rec.AccuracyScore,
		Date:            date,
		CreatedAt:       now,
	}
}

// applyMigrations executes the Up section of each embedded migration at most once.
func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if _, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
	    name TEXT PRIMARY KEY,
	    applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		var applied int
		if err := sqlDB.QueryRow(`SELECT COUNT(1) FROM `+migrationTable+` WHERE name = ?`, file).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if applied > 0 {
			continue
		}
		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		tx, err := sqlDB.BeginTx(context.Background(), nil)
		if err != nil {
			return fmt.Errorf("begin migration transaction %s: %w", file, err)
		}
		if _, err := tx.Exec(upSection(string(content))); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(`INSERT INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`, file, toMillis(time.Now())); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

// upSection returns the SQL between the Up and Down markers.
func upSection(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	if i := strings.Index(content, up); i >= 0 {
		content = content[i+len(up):]
	}
	if i := strings.Index(content, down); i >= 0 {
		content = content[:i]
	}
	return content
}
