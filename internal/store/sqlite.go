package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SQLite stores documents in a single table keyed by (collection, id).
type SQLite struct {
	DB  *sql.DB
	Now func() time.Time
}

// NewSQLite wraps an open database handle with migrations already run.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{DB: db, Now: time.Now}
}

func (s *SQLite) now() string {
	if s.Now != nil {
		return s.Now().UTC().Format(time.RFC3339Nano)
	}
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func (s *SQLite) Create(ctx context.Context, collection, id string, fields Fields) (Record, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return Record{}, fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	now := s.now()
	_, err = s.DB.ExecContext(ctx, `INSERT INTO documents(collection,id,data,created_at,updated_at) VALUES (?,?,?,?,?)`,
		collection, id, string(data), now, now)
	if err != nil {
		return Record{}, fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	return Record{ID: id, Fields: fields}, nil
}

func (s *SQLite) Get(ctx context.Context, collection, id string) (Record, error) {
	var data string
	err := s.DB.QueryRowContext(ctx, `SELECT data FROM documents WHERE collection=? AND id=?`, collection, id).Scan(&data)
	if err == sql.ErrNoRows {
		return Record{}, fmt.Errorf("get %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return decodeRecord(collection, id, data)
}

func (s *SQLite) Update(ctx context.Context, collection, id string, fields Fields) (Record, error) {
	rec, err := s.Get(ctx, collection, id)
	if err != nil {
		return Record{}, err
	}
	for k, v := range fields {
		rec.Fields[k] = v
	}
	data, err := json.Marshal(rec.Fields)
	if err != nil {
		return Record{}, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	_, err = s.DB.ExecContext(ctx, `UPDATE documents SET data=?, updated_at=? WHERE collection=? AND id=?`,
		string(data), s.now(), collection, id)
	if err != nil {
		return Record{}, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return rec, nil
}

func (s *SQLite) Delete(ctx context.Context, collection, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM documents WHERE collection=? AND id=?`, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete %s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

// List returns the collection in insertion order. Ordering relies on rowid,
// not created_at: timestamps are formatted with variable fractional-second
// precision and do not sort lexicographically.
func (s *SQLite) List(ctx context.Context, collection string) ([]Record, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id,data FROM documents WHERE collection=? ORDER BY rowid ASC`, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(collection, id, data)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func decodeRecord(collection, id, data string) (Record, error) {
	var f Fields
	if err := json.Unmarshal([]byte(data), &f); err != nil {
		return Record{}, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return Record{ID: id, Fields: f}, nil
}
