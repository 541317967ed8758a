package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS uploads (
    id TEXT PRIMARY KEY,
    filename TEXT NOT NULL,
    size INTEGER NOT NULL,
    data BLOB NOT NULL,
    created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_uploads_created ON uploads(created_at);
`

// Open opens the cache at dsn. ":memory:" keeps everything in process.
func Open(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// every connection to :memory: is its own database
	db.SetMaxOpenConns(1)

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return New(db), nil
}

// New wraps a database that already carries the uploads schema.
func New(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveUpload(ctx context.Context, filename string, data []byte) (*Upload, error) {
	if data == nil {
		data = []byte{}
	}

	now := time.Now().Unix()
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads (id, filename, size, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, filename, len(data), data, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert upload: %w", err)
	}

	return &Upload{
		ID:        id,
		Filename:  filename,
		Size:      int64(len(data)),
		Data:      data,
		CreatedAt: time.Unix(now, 0),
	}, nil
}

func (s *SQLiteStore) GetUpload(ctx context.Context, id string) (*Upload, error) {
	var u Upload
	var createdAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, filename, size, data, created_at FROM uploads WHERE id = ?`, id,
	).Scan(&u.ID, &u.Filename, &u.Size, &u.Data, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}

	u.CreatedAt = time.Unix(createdAt, 0)
	return &u, nil
}

func (s *SQLiteStore) DeleteUpload(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM uploads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeExpired drops uploads created before the cutoff and reports how many went.
func (s *SQLiteStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM uploads WHERE created_at < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge uploads: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

func (s *SQLiteStore) CountUploads(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM uploads`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count uploads: %w", err)
	}
	return n, nil
}
