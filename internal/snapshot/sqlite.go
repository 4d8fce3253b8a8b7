package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/clitic/music/internal/aggregator"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	name        TEXT PRIMARY KEY,
	written_at  INTEGER NOT NULL,
	video_count INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_videos (
	name          TEXT    NOT NULL,
	position      INTEGER NOT NULL,
	id            TEXT    NOT NULL,
	title         TEXT    NOT NULL,
	view_count    INTEGER NOT NULL,
	like_count    INTEGER NOT NULL,
	comment_count INTEGER NOT NULL,
	frequency     REAL,
	PRIMARY KEY (name, position)
);
`

// SQLiteStore keeps snapshots as rows of an SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	s, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps an open database and applies the schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Exists(ctx context.Context, name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM snapshots WHERE name = ?`, name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, &Error{Op: "stat", Name: name, Err: err}
	}
	return true, nil
}

func (s *SQLiteStore) Read(ctx context.Context, name string) ([]aggregator.VideoRecord, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT video_count FROM snapshots WHERE name = ?`, name).Scan(&count)
	if err == sql.ErrNoRows {
		return nil, &Error{Op: "read", Name: name, Err: ErrNotFound}
	}
	if err != nil {
		return nil, &Error{Op: "read", Name: name, Err: err}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, view_count, like_count, comment_count, frequency
		FROM snapshot_videos WHERE name = ? ORDER BY position`, name)
	if err != nil {
		return nil, &Error{Op: "read", Name: name, Err: err}
	}
	defer rows.Close()

	records := make([]aggregator.VideoRecord, 0, count)
	for rows.Next() {
		var (
			r                      aggregator.VideoRecord
			views, likes, comments int64
			freq                   sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.Title, &views, &likes, &comments, &freq); err != nil {
			return nil, corrupt(name, err)
		}
		if views < 0 || likes < 0 || comments < 0 {
			return nil, corrupt(name, fmt.Errorf("record %s has a negative count", r.ID))
		}
		r.ViewCount, r.LikeCount, r.CommentCount = uint64(views), uint64(likes), uint64(comments)
		if freq.Valid {
			f := freq.Float64
			r.TrendScore = &f
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "read", Name: name, Err: err}
	}
	if len(records) != count {
		return nil, corrupt(name, fmt.Errorf("expected %d records, found %d", count, len(records)))
	}
	if err := validate(records); err != nil {
		return nil, corrupt(name, err)
	}
	return records, nil
}

// Write replaces the named snapshot in one transaction. Counts must fit an
// SQLite INTEGER; a record with a larger count fails the write and leaves the
// stored snapshot as it was.
func (s *SQLiteStore) Write(ctx context.Context, name string, records []aggregator.VideoRecord) (err error) {
	for _, r := range records {
		if r.ViewCount > math.MaxInt64 || r.LikeCount > math.MaxInt64 || r.CommentCount > math.MaxInt64 {
			return &Error{Op: "write", Name: name, Err: fmt.Errorf("%w: record %s", ErrCountOverflow, r.ID)}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &Error{Op: "write", Name: name, Err: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	fail := func(err error) error {
		return &Error{Op: "write", Name: name, Err: err}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_videos WHERE name = ?`, name); err != nil {
		return fail(err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (name, written_at, video_count) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET written_at = excluded.written_at, video_count = excluded.video_count`,
		name, s.now().Unix(), len(records)); err != nil {
		return fail(err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_videos (name, position, id, title, view_count, like_count, comment_count, frequency)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fail(err)
	}
	defer stmt.Close()

	for i, r := range records {
		var freq sql.NullFloat64
		if r.TrendScore != nil {
			freq = sql.NullFloat64{Float64: *r.TrendScore, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, name, i, r.ID, r.Title,
			int64(r.ViewCount), int64(r.LikeCount), int64(r.CommentCount), freq); err != nil {
			return fail(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fail(err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, name string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &Error{Op: "delete", Name: name, Err: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, q := range []string{
		`DELETE FROM snapshot_videos WHERE name = ?`,
		`DELETE FROM snapshots WHERE name = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, name); err != nil {
			return &Error{Op: "delete", Name: name, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &Error{Op: "delete", Name: name, Err: err}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
