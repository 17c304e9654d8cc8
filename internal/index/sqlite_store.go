package index

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS reference_images (
    image_id   TEXT PRIMARY KEY,
    image_path TEXT NOT NULL,
    phash      INTEGER NOT NULL,
    dhash      INTEGER NOT NULL,
    name       TEXT NOT NULL DEFAULT '',
    set_code   TEXT NOT NULL DEFAULT '',
    number     TEXT NOT NULL DEFAULT ''
);
`

// SQLiteStore is the durable reference index.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) the reference index database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open reference index: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize reference index schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) All(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT image_id, image_path, phash, dhash, name, set_code, number FROM reference_images`)
	if err != nil {
		return nil, fmt.Errorf("query reference index: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var phash, dhash int64
		if err := rows.Scan(&e.ImageID, &e.ImagePath, &phash, &dhash, &e.Name, &e.Set, &e.Number); err != nil {
			return nil, fmt.Errorf("scan reference entry: %w", err)
		}
		// Hashes are stored as signed 64-bit; the bit pattern is what matters.
		e.PHash = uint64(phash)
		e.DHash = uint64(dhash)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Append(ctx context.Context, entry Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reference_images (image_id, image_path, phash, dhash, name, set_code, number)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ImageID, entry.ImagePath, int64(entry.PHash), int64(entry.DHash),
		entry.Name, entry.Set, entry.Number)
	if err != nil {
		return fmt.Errorf("append reference entry %s: %w", entry.ImageID, err)
	}
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reference_images`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count reference entries: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
