package media

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Attachment is an indexed record of a fetched attachment.
type Attachment struct {
	Hash       string // 16-hex-char URL hash, primary key
	URL        string
	Path       string
	MimeType   string
	Kind       string
	Size       int64
	Transcript string
	CreatedAt  time.Time
}

// Store keeps an index of fetched attachments in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS attachments (
		hash        TEXT PRIMARY KEY,
		url         TEXT NOT NULL,
		path        TEXT NOT NULL,
		mime_type   TEXT,
		kind        TEXT,
		size        INTEGER DEFAULT 0,
		transcript  TEXT,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_attachments_kind ON attachments(kind, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record inserts or replaces an attachment record. Re-fetching the same URL
// overwrites the previous row (the hash is derived from the URL).
func (s *Store) Record(ctx context.Context, att Attachment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO attachments (hash, url, path, mime_type, kind, size, transcript)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		att.Hash, att.URL, att.Path, att.MimeType, att.Kind, att.Size, att.Transcript,
	)
	if err != nil {
		return fmt.Errorf("record attachment: %w", err)
	}
	return nil
}

// ByHash returns the attachment with the given URL hash, or nil when absent.
func (s *Store) ByHash(ctx context.Context, hash string) (*Attachment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT hash, url, path, mime_type, kind, size, transcript, created_at
		 FROM attachments WHERE hash = ?`, hash)

	var att Attachment
	err := row.Scan(&att.Hash, &att.URL, &att.Path, &att.MimeType, &att.Kind,
		&att.Size, &att.Transcript, &att.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query attachment: %w", err)
	}
	return &att, nil
}

// Count returns the number of indexed attachments.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attachments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count attachments: %w", err)
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
