package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"tesouraria/internal/store"
)

// Store persists the ledger tree in SQLite. Collection children live in
// the records table, leaf values in the nodes table; both hold their
// payload as JSON. Change notifications for in-process subscribers go
// through the hub; cross-process changes arrive via Invalidate.
type Store struct {
	db  *sql.DB
	hub *store.Hub
}

func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, hub: store.NewHub()}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, path string) (<-chan []store.Record, store.CancelFunc, error) {
	out, cancel := store.Stream(ctx, s.hub, path, func(ctx context.Context) ([]store.Record, error) {
		return s.listChildren(ctx, path)
	})
	return out, cancel, nil
}

func (s *Store) Write(ctx context.Context, path string, rec store.Record) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (path, id, data, created_at) VALUES (?, ?, ?, ?)`,
		path, id, string(data), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert record: %w", err)
	}

	s.hub.Broadcast(path)
	return id, nil
}

func (s *Store) Put(ctx context.Context, path string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO nodes (path, value) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET value = excluded.value`,
		path, string(data))
	if err != nil {
		return fmt.Errorf("put node: %w", err)
	}

	s.hub.Broadcast(path)
	return nil
}

func (s *Store) Remove(ctx context.Context, path string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	removed, _ := res.RowsAffected()

	if parent, id, ok := splitChildPath(path); ok {
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM records WHERE path = ? AND id = ?`, parent, id)
		if err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}

	if removed > 0 {
		s.hub.Broadcast(path)
	}
	return nil
}

func (s *Store) ReadOnce(ctx context.Context, path string) (any, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM nodes WHERE path = ?`, path).Scan(&raw)
	switch {
	case err == nil:
		return decodeJSON(raw)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("read node: %w", err)
	}

	if parent, id, ok := splitChildPath(path); ok {
		err = s.db.QueryRowContext(ctx,
			`SELECT data FROM records WHERE path = ? AND id = ?`, parent, id).Scan(&raw)
		switch {
		case err == nil:
			return decodeRecord(raw, id)
		case !errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("read record: %w", err)
		}
	}

	return nil, store.ErrNotFound
}

// Invalidate wakes subscribers after an external change, typically
// signalled by the message bridge.
func (s *Store) Invalidate(path string) {
	s.hub.Broadcast(path)
}

func (s *Store) listChildren(ctx context.Context, path string) ([]store.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data FROM records WHERE path = ? ORDER BY created_at, id`, path)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec, err := decodeRecord(raw, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func splitChildPath(path string) (parent, id string, ok bool) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", "", false
	}
	return path[:i], path[i+1:], true
}

func decodeRecord(raw, id string) (store.Record, error) {
	var rec store.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	rec["id"] = id
	return rec, nil
}

func decodeJSON(raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return v, nil
}
