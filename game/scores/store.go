package scores

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/wricardo/minimetro/game/service"
)

var log = logrus.WithField("module", "scores")

// schemaSQL is embedded at compile time from schema.sql
//
//go:embed schema.sql
var schemaSQL string

// timeFormat sorts lexically in UTC
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNoScores is returned by Best when a city has no finished game yet
var ErrNoScores = errors.New("no scores recorded")

// Store keeps highscores in a SQLite file
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex // SQLite allows one writer at a time
}

var _ service.ScoreStore = (*Store)(nil)

// Open opens (or creates) the highscore database at path and ensures the schema
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	log.WithField("path", path).Info("highscore database ready")
	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts a finished game. ID and RecordedAt are filled in when empty.
func (s *Store) Record(ctx context.Context, entry service.ScoreEntry) (service.ScoreEntry, error) {
	if entry.CityID == "" || entry.Variant == "" {
		return entry, fmt.Errorf("score entry needs a city and a variant")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO highscores
			(id, session_id, city_id, variant, score, week, day, stations, bridges_built, elapsed_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.SessionID, entry.CityID, entry.Variant, entry.Score,
		entry.Week, entry.Day, entry.Stations, entry.BridgesBuilt, entry.Elapsed,
		entry.RecordedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return entry, fmt.Errorf("failed to insert score: %w", err)
	}
	return entry, nil
}

// Top returns the best games for a city and variant, highest score first.
// Ties go to the game that ended earlier.
func (s *Store) Top(ctx context.Context, cityID, variant string, limit int) ([]service.ScoreEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, city_id, variant, score, week, day, stations, bridges_built, elapsed_ms, recorded_at
		FROM highscores
		WHERE city_id = ? AND variant = ?
		ORDER BY score DESC, recorded_at ASC
		LIMIT ?`, cityID, variant, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scores: %w", err)
	}
	defer rows.Close()

	entries := []service.ScoreEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scores: %w", err)
	}
	return entries, nil
}

// Best returns the single best game for a city and variant
func (s *Store) Best(ctx context.Context, cityID, variant string) (service.ScoreEntry, error) {
	top, err := s.Top(ctx, cityID, variant, 1)
	if err != nil {
		return service.ScoreEntry{}, err
	}
	if len(top) == 0 {
		return service.ScoreEntry{}, ErrNoScores
	}
	return top[0], nil
}

// Count returns how many games were recorded in total
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM highscores`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count scores: %w", err)
	}
	return n, nil
}

func scanEntry(rows *sql.Rows) (service.ScoreEntry, error) {
	var (
		entry      service.ScoreEntry
		recordedAt string
	)
	err := rows.Scan(
		&entry.ID, &entry.SessionID, &entry.CityID, &entry.Variant, &entry.Score,
		&entry.Week, &entry.Day, &entry.Stations, &entry.BridgesBuilt, &entry.Elapsed,
		&recordedAt,
	)
	if err != nil {
		return entry, fmt.Errorf("failed to scan score: %w", err)
	}
	if entry.RecordedAt, err = time.Parse(timeFormat, recordedAt); err != nil {
		return entry, fmt.Errorf("bad recorded_at %q: %w", recordedAt, err)
	}
	return entry, nil
}
