// Package ledger keeps an SQLite history of the artifacts written by
// ingests, so a site's captures can be listed without walking the output
// tree.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/use-agent/scrollsnap/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS ingests (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	site         TEXT    NOT NULL,
	scroll_index INTEGER NOT NULL,
	kind         TEXT    NOT NULL,
	artifact     TEXT    NOT NULL,
	row_count    INTEGER NOT NULL,
	screenshot   TEXT    NOT NULL DEFAULT '',
	created_at   TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ingests_site ON ingests(site, scroll_index, id);
`

// Ledger records ingest history. It is safe for concurrent use.
type Ledger struct {
	db *sql.DB
}

// Open opens (or creates) the ledger database at path. Use ":memory:" in
// tests.
func Open(path string) (*Ledger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ledger: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("ledger: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record stores one entry. ID and a missing CreatedAt are filled in.
func (l *Ledger) Record(ctx context.Context, e models.HistoryEntry) error {
	if e.CreatedAt == "" {
		e.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO ingests (site, scroll_index, kind, artifact, row_count, screenshot, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Site, e.ScrollIndex, e.Kind, e.Artifact, e.Rows, e.Screenshot, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ledger: insert: %w", err)
	}
	return nil
}

// Query filters the history.
type Query struct {
	Site        string // required
	ScrollIndex *int   // nil for every scroll position
	Limit       int    // default 100
}

// List returns matching entries, newest first.
func (l *Ledger) List(ctx context.Context, q Query) ([]models.HistoryEntry, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}

	query := `SELECT id, site, scroll_index, kind, artifact, row_count, screenshot, created_at
		FROM ingests WHERE site = ?`
	args := []any{q.Site}
	if q.ScrollIndex != nil {
		query += ` AND scroll_index = ?`
		args = append(args, *q.ScrollIndex)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, q.Limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: query: %w", err)
	}
	defer rows.Close()

	entries := []models.HistoryEntry{}
	for rows.Next() {
		var e models.HistoryEntry
		if err := rows.Scan(&e.ID, &e.Site, &e.ScrollIndex, &e.Kind, &e.Artifact, &e.Rows, &e.Screenshot, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: rows: %w", err)
	}
	return entries, nil
}
