package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/conorfennell/kanadeck/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// DB represents a wrapper around the SQL database connection.
// It implements scheduler.Store.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database at path and migrates it.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("open: empty db path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("open: create db dir: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := migrate(context.Background(), conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// LoadCards returns the cards of deck in saved order. found is false if the
// deck was never saved.
func (db *DB) LoadCards(ctx context.Context, deck string) ([]domain.Card, bool, error) {
	var savedAt string
	err := db.conn.QueryRowContext(ctx, `SELECT saved_at FROM decks WHERE name = ?`, deck).Scan(&savedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to find deck %s: %w", deck, err)
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, front, back, category, tags, source, easiness, interval_days, repetitions,
		       due_date, last_studied, created_at
		FROM cards WHERE deck = ? ORDER BY position
	`, deck)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cards for deck %s: %w", deck, err)
	}
	defer rows.Close()

	cards := []domain.Card{}
	for rows.Next() {
		var (
			c                  domain.Card
			tags               string
			dueDate, createdAt string
			lastStudied        sql.NullString
		)
		if err := rows.Scan(
			&c.ID,
			&c.Front,
			&c.Back,
			&c.Category,
			&tags,
			&c.Source,
			&c.Easiness,
			&c.Interval,
			&c.Repetitions,
			&dueDate,
			&lastStudied,
			&createdAt,
		); err != nil {
			return nil, false, fmt.Errorf("failed to scan card row for deck %s: %w", deck, err)
		}
		if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil {
			return nil, false, fmt.Errorf("failed to decode tags of card %s: %w", c.ID, err)
		}
		if c.DueDate, err = parseTime(dueDate); err != nil {
			return nil, false, fmt.Errorf("card %s due_date: %w", c.ID, err)
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, false, fmt.Errorf("card %s created_at: %w", c.ID, err)
		}
		if c.LastStudied, err = parseNullTime(lastStudied); err != nil {
			return nil, false, fmt.Errorf("card %s last_studied: %w", c.ID, err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("failed to read cards for deck %s: %w", deck, err)
	}
	return cards, true, nil
}

// SaveCards replaces the stored collection of deck with cards.
func (db *DB) SaveCards(ctx context.Context, deck string, cards []domain.Card) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin save of deck %s: %w", deck, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO decks (name, saved_at) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET saved_at = excluded.saved_at
	`, deck, formatTime(time.Now())); err != nil {
		return fmt.Errorf("failed to upsert deck %s: %w", deck, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE deck = ?`, deck); err != nil {
		return fmt.Errorf("failed to clear deck %s: %w", deck, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cards (deck, id, position, front, back, category, tags, source, easiness,
		                   interval_days, repetitions, due_date, last_studied, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare card insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range cards {
		tags := c.Tags
		if tags == nil {
			tags = []string{}
		}
		encoded, err := json.Marshal(tags)
		if err != nil {
			return fmt.Errorf("failed to encode tags of card %s: %w", c.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			deck,
			c.ID,
			i,
			c.Front,
			c.Back,
			c.Category,
			string(encoded),
			c.Source,
			c.Easiness,
			c.Interval,
			c.Repetitions,
			formatTime(c.DueDate),
			formatNullTime(c.LastStudied),
			formatTime(c.CreatedAt),
		); err != nil {
			return fmt.Errorf("failed to insert card %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit deck %s: %w", deck, err)
	}
	return nil
}

// AppendSession records a finished study session for deck.
func (db *DB) AppendSession(ctx context.Context, deck string, s domain.Session) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sessions (deck, start_time, end_time, cards_studied, correct_answers)
		VALUES (?, ?, ?, ?, ?)
	`,
		deck,
		formatTime(s.StartTime),
		formatNullTime(s.EndTime),
		s.CardsStudied,
		s.CorrectAnswers,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session for deck %s: %w", deck, err)
	}
	return nil
}

// LoadSessions returns the finished sessions of deck, oldest first.
func (db *DB) LoadSessions(ctx context.Context, deck string) ([]domain.Session, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT start_time, end_time, cards_studied, correct_answers
		FROM sessions WHERE deck = ? ORDER BY id
	`, deck)
	if err != nil {
		return nil, fmt.Errorf("failed to get sessions for deck %s: %w", deck, err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var (
			s     domain.Session
			start string
			end   sql.NullString
		)
		if err := rows.Scan(&start, &end, &s.CardsStudied, &s.CorrectAnswers); err != nil {
			return nil, fmt.Errorf("failed to scan session row for deck %s: %w", deck, err)
		}
		if s.StartTime, err = parseTime(start); err != nil {
			return nil, fmt.Errorf("session start_time: %w", err)
		}
		if s.EndTime, err = parseNullTime(end); err != nil {
			return nil, fmt.Errorf("session end_time: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
