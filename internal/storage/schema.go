package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order; the index+1 is the schema version.
var migrations = []string{
	`
-- A deck row exists once the deck has been saved, even with zero cards.
CREATE TABLE IF NOT EXISTS decks (
    name TEXT PRIMARY KEY,
    saved_at TEXT NOT NULL
);

-- The 'cards' table stores every card of every deck with its SM-2 state.
CREATE TABLE IF NOT EXISTS cards (
    deck TEXT NOT NULL,
    id TEXT NOT NULL,
    position INTEGER NOT NULL,
    front TEXT NOT NULL,
    back TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '[]', -- JSON array
    source TEXT NOT NULL DEFAULT '',
    easiness REAL NOT NULL,
    interval_days INTEGER NOT NULL,
    repetitions INTEGER NOT NULL,
    due_date TEXT NOT NULL,
    last_studied TEXT,
    created_at TEXT NOT NULL,

    PRIMARY KEY (deck, id),
    FOREIGN KEY (deck) REFERENCES decks(name) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_cards_deck_due ON cards(deck, due_date);

-- Finished study sessions, append-only.
CREATE TABLE IF NOT EXISTS sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    deck TEXT NOT NULL,
    start_time TEXT NOT NULL,
    end_time TEXT,
    cards_studied INTEGER NOT NULL,
    correct_answers INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_deck ON sessions(deck, id);

-- Markdown card sources, either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    deck TEXT NOT NULL,
    path TEXT NOT NULL,
    type TEXT NOT NULL,
    last_scanned TEXT,

    UNIQUE (deck, path)
);
`,
}

// SchemaVersion is the version the database ends up at after Open.
var SchemaVersion = len(migrations)

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY);`); err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&current); err != nil {
		return fmt.Errorf("migrate: read current version: %w", err)
	}

	for v := current + 1; v <= len(migrations); v++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migrate: begin v%d: %w", v, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[v-1]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate: apply v%d: %w", v, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES (?);`, v); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate: record v%d: %w", v, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate: commit v%d: %w", v, err)
		}
	}
	return nil
}
