package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"tesouraria/internal/store"
)

// Store is the in-process backend. It is the default for local runs and
// doubles as the test fixture for everything that talks to the store
// port.
type Store struct {
	mu     sync.Mutex
	leaves map[string]any
	// collections keep insertion order so snapshots are stable.
	collections map[string]*collection
	hub         *store.Hub
}

type collection struct {
	order   []string
	records map[string]store.Record
}

func New() *Store {
	return &Store{
		leaves:      make(map[string]any),
		collections: make(map[string]*collection),
		hub:         store.NewHub(),
	}
}

func (s *Store) Subscribe(ctx context.Context, path string) (<-chan []store.Record, store.CancelFunc, error) {
	out, cancel := store.Stream(ctx, s.hub, path, func(context.Context) ([]store.Record, error) {
		return s.snapshot(path), nil
	})
	return out, cancel, nil
}

func (s *Store) Write(_ context.Context, path string, rec store.Record) (string, error) {
	s.mu.Lock()
	col, ok := s.collections[path]
	if !ok {
		col = &collection{records: make(map[string]store.Record)}
		s.collections[path] = col
	}
	id := uuid.NewString()
	col.order = append(col.order, id)
	col.records[id] = rec.Clone()
	s.mu.Unlock()

	s.hub.Broadcast(path)
	return id, nil
}

func (s *Store) Put(_ context.Context, path string, value any) error {
	s.mu.Lock()
	s.leaves[path] = value
	s.mu.Unlock()

	s.hub.Broadcast(path)
	return nil
}

func (s *Store) Remove(_ context.Context, path string) error {
	s.mu.Lock()
	removed := false
	if _, ok := s.leaves[path]; ok {
		delete(s.leaves, path)
		removed = true
	}
	if col, id, ok := s.locateChild(path); ok {
		delete(col.records, id)
		for i, existing := range col.order {
			if existing == id {
				col.order = append(col.order[:i], col.order[i+1:]...)
				break
			}
		}
		removed = true
	}
	s.mu.Unlock()

	if removed {
		s.hub.Broadcast(path)
	}
	return nil
}

func (s *Store) ReadOnce(_ context.Context, path string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.leaves[path]; ok {
		return v, nil
	}
	if col, id, ok := s.locateChild(path); ok {
		if rec, ok := col.records[id]; ok {
			out := rec.Clone()
			out["id"] = id
			return out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) Close() error { return nil }

// locateChild splits path into "<collection>/<id>". Caller holds the lock.
func (s *Store) locateChild(path string) (*collection, string, bool) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return nil, "", false
	}
	col, ok := s.collections[path[:i]]
	if !ok {
		return nil, "", false
	}
	id := path[i+1:]
	if _, ok := col.records[id]; !ok {
		return nil, "", false
	}
	return col, id, true
}

func (s *Store) snapshot(path string) []store.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[path]
	if !ok {
		return nil
	}
	out := make([]store.Record, 0, len(col.order))
	for _, id := range col.order {
		rec, ok := col.records[id]
		if !ok {
			continue
		}
		c := rec.Clone()
		c["id"] = id
		out = append(out, c)
	}
	return out
}
