package store

import (
	"context"
	"errors"
)

// Record is one raw stored record as it crosses the store boundary:
// a loosely-typed key/value map. Nothing outside the normalizer may
// interpret these directly.
type Record map[string]any

// CancelFunc releases a subscription. Safe to call more than once.
type CancelFunc func()

// ErrNotFound is returned by ReadOnce when nothing exists at the path.
// Absence is a normal state for callers, not a failure.
var ErrNotFound = errors.New("store: path not found")

// Store is the ledger store port. Paths are slash-separated, e.g.
// "tenants/penielzn/entries". A path either holds a collection of
// records (written with Write, each under a generated child id) or a
// single leaf value (written with Put).
type Store interface {
	// Subscribe streams snapshots of the collection at path. The full
	// current snapshot is delivered immediately and again after every
	// change. The channel closes when the subscription is cancelled or
	// the context ends.
	Subscribe(ctx context.Context, path string) (<-chan []Record, CancelFunc, error)

	// Write appends a record to the collection at path and returns the
	// generated child id.
	Write(ctx context.Context, path string, rec Record) (string, error)

	// Put sets the leaf value at path, replacing any previous value.
	Put(ctx context.Context, path string, value any) error

	// Remove deletes the node at path, whether leaf or collection child.
	// Removing an absent path is not an error.
	Remove(ctx context.Context, path string) error

	// ReadOnce returns the single value at path: the leaf value, or the
	// record for a collection child addressed as "<collection>/<id>".
	ReadOnce(ctx context.Context, path string) (any, error)

	Close() error
}

// Invalidator is implemented by stores whose data can change outside
// the current process; Invalidate forces subscribers under path to
// re-read.
type Invalidator interface {
	Invalidate(path string)
}

// Clone returns a shallow copy so a snapshot handed to one subscriber
// is never aliased by another.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
