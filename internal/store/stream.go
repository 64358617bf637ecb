package store

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Hub fans out change signals to path subscribers. A subscriber is
// woken whenever a change happens at or under its path. Signals are
// coalesced: a slow subscriber sees at least one wake-up, not one per
// change.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*hubSub
}

type hubSub struct {
	path   string
	wakeup chan struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]*hubSub)}
}

// Register adds a subscriber for path and returns its id and wake-up
// channel.
func (h *Hub) Register(path string) (int, <-chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	s := &hubSub{path: path, wakeup: make(chan struct{}, 1)}
	h.subs[id] = s
	return id, s.wakeup
}

func (h *Hub) Unregister(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

// Broadcast wakes every subscriber whose path covers the changed path.
func (h *Hub) Broadcast(changed string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		if !pathCovers(s.path, changed) {
			continue
		}
		select {
		case s.wakeup <- struct{}{}:
		default: // already pending
		}
	}
}

// pathCovers reports whether a change at changed is visible to a
// subscriber of base: equal paths or changed nested under base.
func pathCovers(base, changed string) bool {
	if base == changed {
		return true
	}
	return strings.HasPrefix(changed, base+"/")
}

// Stream runs the snapshot loop shared by every backend: deliver the
// current snapshot immediately, then re-load and re-deliver on every
// hub wake-up until cancelled. Snapshots are always recomputed in full;
// there is no delta protocol.
func Stream(ctx context.Context, hub *Hub, path string, load func(context.Context) ([]Record, error)) (<-chan []Record, CancelFunc) {
	out := make(chan []Record, 1)
	done := make(chan struct{})
	id, wakeup := hub.Register(path)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			hub.Unregister(id)
			close(done)
		})
	}

	go func() {
		defer close(out)

		send := func() bool {
			snap, err := load(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "Snapshot load failed", "path", path, "error", err)
				return true // keep the subscription; next change retries
			}
			select {
			case out <- snap:
			case <-done:
				return false
			case <-ctx.Done():
				return false
			}
			return true
		}

		if !send() {
			return
		}
		for {
			select {
			case <-wakeup:
				if !send() {
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				cancel()
				return
			}
		}
	}()

	return out, cancel
}
