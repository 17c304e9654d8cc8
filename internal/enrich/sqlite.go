package enrich

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

const cardSchema = `
CREATE TABLE IF NOT EXISTS cards (
    name     TEXT NOT NULL,
    set_code TEXT NOT NULL,
    number   TEXT NOT NULL,
    rarity   TEXT NOT NULL DEFAULT '',
    extra    TEXT NOT NULL DEFAULT '{}',
    PRIMARY KEY (set_code, number, name)
);
`

// SQLiteDatabase implements ReferenceDatabase over a local card database.
type SQLiteDatabase struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteDatabase, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open card database: %w", err)
	}
	if _, err := db.Exec(cardSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize card database schema: %w", err)
	}
	return &SQLiteDatabase{db: db}, nil
}

// FindExact looks up a card by identity. Empty fields are left
// unconstrained so partial identities from synthesized candidates can
// still resolve, as long as exactly one card matches.
func (d *SQLiteDatabase) FindExact(ctx context.Context, name, set, number string) (*CardRecord, error) {
	query := `SELECT name, set_code, number, rarity, extra FROM cards WHERE 1=1`
	var args []interface{}
	if name != "" {
		query += ` AND name = ?`
		args = append(args, name)
	}
	if set != "" {
		query += ` AND set_code = ?`
		args = append(args, set)
	}
	if number != "" {
		query += ` AND number = ?`
		args = append(args, number)
	}
	if len(args) == 0 {
		return nil, nil
	}
	query += ` LIMIT 2`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("card lookup: %w", err)
	}
	defer rows.Close()

	var records []CardRecord
	for rows.Next() {
		var r CardRecord
		var extra string
		if err := rows.Scan(&r.Name, &r.Set, &r.Number, &r.Rarity, &extra); err != nil {
			return nil, fmt.Errorf("scan card record: %w", err)
		}
		if extra != "" {
			// Extra attributes are stored as a JSON object; a corrupt
			// blob only loses the attributes, not the record.
			_ = json.Unmarshal([]byte(extra), &r.Extra)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Ambiguous partial identities are treated as not found.
	if len(records) != 1 {
		return nil, nil
	}
	return &records[0], nil
}

// Insert adds or replaces one card record.
func (d *SQLiteDatabase) Insert(ctx context.Context, r CardRecord) error {
	extra := "{}"
	if len(r.Extra) > 0 {
		data, err := json.Marshal(r.Extra)
		if err != nil {
			return fmt.Errorf("serialize card extras: %w", err)
		}
		extra = string(data)
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cards (name, set_code, number, rarity, extra) VALUES (?, ?, ?, ?, ?)`,
		r.Name, r.Set, r.Number, r.Rarity, extra)
	if err != nil {
		return fmt.Errorf("insert card record: %w", err)
	}
	return nil
}

func (d *SQLiteDatabase) Close() error {
	return d.db.Close()
}
