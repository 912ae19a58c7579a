// Package history stores computed risk scores in a sqlite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("history store is closed")

// DefaultLimit caps ListByPerson when no limit is given.
const DefaultLimit = 50

// fixed width so that text order matches time order
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS predictions (
	id          TEXT PRIMARY KEY,
	person_id   TEXT NOT NULL,
	risk        REAL NOT NULL,
	window_days INTEGER NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS predictions_person ON predictions (person_id, created_at);
`

// Entry is one stored prediction
type Entry struct {
	ID         string    `json:"id"`
	PersonID   string    `json:"person_id"`
	Risk       float64   `json:"insomnia_risk"`
	WindowDays int       `json:"window_days"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists entries. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// Open creates or opens the database at path and ensures the table exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Record stores e. Empty ID and zero CreatedAt are filled in; the stored
// entry is returned.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return Entry{}, ErrClosed
	}

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	e.CreatedAt = e.CreatedAt.UTC()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO predictions (id, person_id, risk, window_days, created_at) VALUES (?, ?, ?, ?, ?)",
		e.ID, e.PersonID, e.Risk, e.WindowDays, e.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("insert prediction: %w", err)
	}
	return e, nil
}

// ListByPerson returns the newest entries for a person, newest first.
func (s *Store) ListByPerson(ctx context.Context, personID string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, person_id, risk, window_days, created_at FROM predictions WHERE person_id = ? ORDER BY created_at DESC, id LIMIT ?",
		personID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.ID, &e.PersonID, &e.Risk, &e.WindowDays, &created); err != nil {
			return nil, err
		}
		e.CreatedAt, err = time.Parse(timeLayout, created)
		if err != nil {
			return nil, fmt.Errorf("bad timestamp for %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database. Further calls return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
