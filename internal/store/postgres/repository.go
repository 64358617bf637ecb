package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tesouraria/internal/store"
)

// Store persists the ledger tree in PostgreSQL with the same two-table
// layout as the SQLite backend. Meant for deployments where several
// server instances share one database; pair it with the message bridge
// so each instance's subscribers see foreign writes.
type Store struct {
	pool *pgxpool.Pool
	hub  *store.Hub
}

func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{pool: pool, hub: store.NewHub()}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS records (
			path       TEXT NOT NULL,
			id         TEXT NOT NULL,
			data       JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (path, id)
		);
		CREATE INDEX IF NOT EXISTS idx_records_path ON records (path, created_at);
		CREATE TABLE IF NOT EXISTS nodes (
			path  TEXT PRIMARY KEY,
			value JSONB NOT NULL
		);`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
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
	_, err = s.pool.Exec(ctx,
		`INSERT INTO records (path, id, data, created_at) VALUES ($1, $2, $3, $4)`,
		path, id, data, time.Now().UTC())
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

	_, err = s.pool.Exec(ctx,
		`INSERT INTO nodes (path, value) VALUES ($1, $2)
		 ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value`,
		path, data)
	if err != nil {
		return fmt.Errorf("put node: %w", err)
	}

	s.hub.Broadcast(path)
	return nil
}

func (s *Store) Remove(ctx context.Context, path string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM nodes WHERE path = $1`, path)
	if err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	removed := tag.RowsAffected()

	if parent, id, ok := splitChildPath(path); ok {
		tag, err = s.pool.Exec(ctx,
			`DELETE FROM records WHERE path = $1 AND id = $2`, parent, id)
		if err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		removed += tag.RowsAffected()
	}

	if removed > 0 {
		s.hub.Broadcast(path)
	}
	return nil
}

func (s *Store) ReadOnce(ctx context.Context, path string) (any, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM nodes WHERE path = $1`, path).Scan(&raw)
	switch {
	case err == nil:
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode value: %w", err)
		}
		return v, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("read node: %w", err)
	}

	if parent, id, ok := splitChildPath(path); ok {
		err = s.pool.QueryRow(ctx,
			`SELECT data FROM records WHERE path = $1 AND id = $2`, parent, id).Scan(&raw)
		switch {
		case err == nil:
			return decodeRecord(raw, id)
		case !errors.Is(err, pgx.ErrNoRows):
			return nil, fmt.Errorf("read record: %w", err)
		}
	}

	return nil, store.ErrNotFound
}

// Invalidate wakes subscribers after an external change.
func (s *Store) Invalidate(path string) {
	s.hub.Broadcast(path)
}

func (s *Store) listChildren(ctx context.Context, path string) ([]store.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, data FROM records WHERE path = $1 ORDER BY created_at, id`, path)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		var id string
		var raw []byte
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

func decodeRecord(raw []byte, id string) (store.Record, error) {
	var rec store.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	rec["id"] = id
	return rec, nil
}
