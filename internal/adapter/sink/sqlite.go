package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"wa-resolver/internal/domain"
)

// SQLite persists the latest annotation page per canvas. Like Store, a later
// delivery for the same canvas replaces the earlier one.
type SQLite struct {
	db     *sql.DB
	closed atomic.Bool
}

// NewSQLite opens (or creates) the database at dbPath and runs the schema
// migration.
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open annotation db: %w", err)
	}
	// Deliveries arrive from many goroutines; one connection serializes writes.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate annotation db: %w", err)
	}
	return &SQLite{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS annotation_pages (
			canvas_id    TEXT PRIMARY KEY,
			endpoint_url TEXT NOT NULL,
			page         TEXT NOT NULL,
			deliveries   INTEGER NOT NULL DEFAULT 1,
			updated_at   TEXT NOT NULL
		)
	`)
	return err
}

// Deliver implements domain.AnnotationSink.
func (s *SQLite) Deliver(ctx context.Context, canvasID, endpointURL string, page domain.AnnotationPage) error {
	if s.closed.Load() {
		return domain.NewDomainError("SQLite.Deliver", domain.ErrSinkClosed, canvasID)
	}
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("marshal page: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO annotation_pages (canvas_id, endpoint_url, page, deliveries, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(canvas_id) DO UPDATE SET
			endpoint_url = excluded.endpoint_url,
			page         = excluded.page,
			deliveries   = deliveries + 1,
			updated_at   = excluded.updated_at`,
		canvasID, endpointURL, string(data), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store page: %w", err)
	}
	return nil
}

// Entries implements Lister.
func (s *SQLite) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT canvas_id, endpoint_url, page, deliveries FROM annotation_pages ORDER BY canvas_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	var page string
	if err := row.Scan(&e.CanvasID, &e.EndpointURL, &page, &e.Deliveries); err != nil {
		return Entry{}, err
	}
	if err := json.Unmarshal([]byte(page), &e.Page); err != nil {
		return Entry{}, fmt.Errorf("unmarshal page: %w", err)
	}
	return e, nil
}
