package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"tesouraria/internal/store"
)

func TestWriteAndReadOnce(t *testing.T) {
	s := New()
	ctx := context.Background()

	id, err := s.Write(ctx, "tenants/a/entries", store.Record{"title": "Dízimo"})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if id == "" {
		t.Fatal("Write returned empty id")
	}

	got, err := s.ReadOnce(ctx, "tenants/a/entries/"+id)
	if err != nil {
		t.Fatalf("ReadOnce: %v", err)
	}
	rec, ok := got.(store.Record)
	if !ok {
		t.Fatalf("ReadOnce returned %T, want Record", got)
	}
	if rec["title"] != "Dízimo" || rec["id"] != id {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestPutAndReadOnceLeaf(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Put(ctx, "tenants/a/settings/deletePassword", "s3cret"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.ReadOnce(ctx, "tenants/a/settings/deletePassword")
	if err != nil {
		t.Fatalf("ReadOnce: %v", err)
	}
	if got != "s3cret" {
		t.Errorf("ReadOnce = %v, want secret", got)
	}
}

func TestReadOnce_Absent(t *testing.T) {
	s := New()
	_, err := s.ReadOnce(context.Background(), "nowhere")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRemove(t *testing.T) {
	s := New()
	ctx := context.Background()

	id, _ := s.Write(ctx, "tenants/a/entries", store.Record{"title": "x"})
	if err := s.Remove(ctx, "tenants/a/entries/"+id); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.ReadOnce(ctx, "tenants/a/entries/"+id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("record still present after Remove: %v", err)
	}

	// Removing again is a no-op, not an error.
	if err := s.Remove(ctx, "tenants/a/entries/"+id); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}

func TestSubscribe_DeliversSnapshots(t *testing.T) {
	s := New()
	ctx := context.Background()

	snaps, cancel, err := s.Subscribe(ctx, "tenants/a/entries")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	// Initial snapshot is empty.
	if snap := waitSnapshot(t, snaps); len(snap) != 0 {
		t.Fatalf("initial snapshot has %d records, want 0", len(snap))
	}

	if _, err := s.Write(ctx, "tenants/a/entries", store.Record{"title": "a"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if snap := waitSnapshot(t, snaps); len(snap) != 1 {
		t.Fatalf("snapshot after write has %d records, want 1", len(snap))
	}

	// A write on another path must not produce a snapshot.
	if _, err := s.Write(ctx, "tenants/b/entries", store.Record{"title": "b"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	select {
	case snap := <-snaps:
		t.Fatalf("unexpected snapshot for foreign path: %v", snap)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribe_CancelStopsDelivery(t *testing.T) {
	s := New()
	ctx := context.Background()

	snaps, cancel, err := s.Subscribe(ctx, "tenants/a/entries")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	waitSnapshot(t, snaps)
	cancel()

	// After cancel the channel closes; later writes deliver nothing.
	if _, err := s.Write(ctx, "tenants/a/entries", store.Record{"title": "late"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	deadline := time.After(500 * time.Millisecond)
	for {
		select {
		case _, ok := <-snaps:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after cancel")
		}
	}
}

func TestSnapshot_PreservesInsertionOrder(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, _ := s.Write(ctx, "c", store.Record{"n": 1})
	second, _ := s.Write(ctx, "c", store.Record{"n": 2})

	snaps, cancel, _ := s.Subscribe(ctx, "c")
	defer cancel()
	snap := waitSnapshot(t, snaps)
	if len(snap) != 2 || snap[0]["id"] != first || snap[1]["id"] != second {
		t.Errorf("snapshot order wrong: %v", snap)
	}
}

func waitSnapshot(t *testing.T, ch <-chan []store.Record) []store.Record {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatal("snapshot channel closed")
		}
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}
