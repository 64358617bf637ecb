// Package session holds the per-user ledger view: the resolved
// partition, its live entry list, the selected month and the totals
// derived from it.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"tesouraria/internal/amqp"
	"tesouraria/internal/core"
	"tesouraria/internal/store"
	"tesouraria/internal/tenant"
)

var (
	// ErrNoTenant means the user resolved to no partition; the session
	// is read-only and empty.
	ErrNoTenant = errors.New("session: user has no partition")

	ErrEntryNotFound    = errors.New("session: entry not found")
	ErrDeleteNotAllowed = errors.New("session: delete not authorized")
)

// EventPublisher announces entry mutations for the mirror worker. A nil
// publisher disables mirroring.
type EventPublisher interface {
	PublishEntryEvent(ctx context.Context, msg *amqp.EntryEvent) error
}

// Overview is one consistent read of the session state.
type Overview struct {
	Tenant    tenant.Tenant
	HasTenant bool
	Admin     bool
	Period    core.Period
	Entries   []core.Entry
	Totals    core.Totals
}

// Session owns the normalized entry list for one user. A background
// goroutine applies store snapshots; every period change or snapshot
// triggers a full recompute of the filtered list and totals.
type Session struct {
	st     store.Store
	auth   tenant.DeleteAuthorizer
	events EventPublisher

	userID    string
	tenant    tenant.Tenant
	hasTenant bool
	admin     bool

	mu       sync.RWMutex
	period   core.Period
	entries  []core.Entry
	filtered []core.Entry
	totals   core.Totals

	cancel    store.CancelFunc
	ready     chan struct{}
	readyOnce sync.Once
	closeOnce sync.Once
}

func newSession(st store.Store, auth tenant.DeleteAuthorizer, events EventPublisher, userID string) *Session {
	return &Session{
		st:     st,
		auth:   auth,
		events: events,
		userID: userID,
		period: core.CurrentPeriod(time.Now()),
		ready:  make(chan struct{}),
	}
}

// open starts the snapshot loop for a resolved partition, or marks the
// session ready immediately when there is none to watch.
func (s *Session) open(ctx context.Context, t tenant.Tenant, hasTenant, admin bool) error {
	s.tenant = t
	s.hasTenant = hasTenant
	s.admin = admin

	if !hasTenant {
		s.readyOnce.Do(func() { close(s.ready) })
		return nil
	}

	snapshots, cancel, err := s.st.Subscribe(context.Background(), tenant.EntriesPath(t.ID))
	if err != nil {
		return err
	}
	s.cancel = cancel
	go s.run(snapshots)

	// Wait for the initial snapshot so the first read is not empty.
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) run(snapshots <-chan []store.Record) {
	for recs := range snapshots {
		entries := make([]core.Entry, 0, len(recs))
		for _, rec := range recs {
			entries = append(entries, core.Normalize(rec))
		}

		s.mu.Lock()
		s.entries = entries
		s.recompute()
		s.mu.Unlock()

		s.readyOnce.Do(func() { close(s.ready) })
	}
}

// recompute rebuilds the filtered view and totals. Caller holds s.mu.
func (s *Session) recompute() {
	s.filtered = core.FilterByPeriod(s.entries, s.period.Year, s.period.Month)
	s.totals = core.Aggregate(s.filtered)
}

// Overview returns the current state: the selected month's entries in
// store order and their totals.
func (s *Session) Overview() Overview {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]core.Entry, len(s.filtered))
	copy(entries, s.filtered)

	return Overview{
		Tenant:    s.tenant,
		HasTenant: s.hasTenant,
		Admin:     s.admin,
		Period:    s.period,
		Entries:   entries,
		Totals:    s.totals,
	}
}

// Period returns the selected month.
func (s *Session) Period() core.Period {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.period
}

// Advance moves the selected month by direction months and returns the
// new period. Navigation is unbounded in both directions.
func (s *Session) Advance(direction int) core.Period {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.period = s.period.Advance(direction)
	s.recompute()
	return s.period
}

// SetPeriod selects a month directly.
func (s *Session) SetPeriod(p core.Period) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.period = p
	s.recompute()
}

// AddEntry validates and stores a new entry. The store assigns the id;
// the returned entry carries it. Validation reports every failing field
// at once.
func (s *Session) AddEntry(ctx context.Context, e core.Entry) (core.Entry, error) {
	if !s.hasTenant {
		return core.Entry{}, ErrNoTenant
	}
	if err := e.Validate(); err != nil {
		return core.Entry{}, err
	}

	rec := store.Record(e.Record())
	delete(rec, "id") // the store's child id is the entry id

	id, err := s.st.Write(ctx, tenant.EntriesPath(s.tenant.ID), rec)
	if err != nil {
		return core.Entry{}, err
	}
	e.ID = id

	s.publish(ctx, amqp.OpCreated, e)

	slog.InfoContext(ctx, "Added entry",
		"tenant", s.tenant.ID,
		"entry_id", e.ID,
		"category", e.Category)
	return e, nil
}

// DeleteEntry removes an entry after checking the partition's shared
// delete secret and returns the removed entry. Authorization fails
// closed.
func (s *Session) DeleteEntry(ctx context.Context, entryID, secret string) (core.Entry, error) {
	if !s.hasTenant {
		return core.Entry{}, ErrNoTenant
	}

	entry, ok := s.findEntry(entryID)
	if !ok {
		return core.Entry{}, ErrEntryNotFound
	}

	if !s.auth.Authorize(ctx, s.tenant.ID, secret) {
		return core.Entry{}, ErrDeleteNotAllowed
	}

	if err := s.st.Remove(ctx, tenant.EntriesPath(s.tenant.ID)+"/"+entryID); err != nil {
		return core.Entry{}, err
	}

	s.publish(ctx, amqp.OpDeleted, entry)

	slog.InfoContext(ctx, "Deleted entry",
		"tenant", s.tenant.ID,
		"entry_id", entryID)
	return entry, nil
}

func (s *Session) findEntry(entryID string) (core.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.ID == entryID {
			return e, true
		}
	}
	return core.Entry{}, false
}

// publish is best effort; the mirror catches up later if the bus is
// down.
func (s *Session) publish(ctx context.Context, op string, e core.Entry) {
	if s.events == nil {
		return
	}
	msg := &amqp.EntryEvent{
		Op:       op,
		Tenant:   s.tenant.ID,
		EntryID:  e.ID,
		Title:    e.Title,
		Category: e.Category,
		Value:    e.Value.String(),
		Date:     e.Date.Format(time.RFC3339),
	}
	if err := s.events.PublishEntryEvent(ctx, msg); err != nil {
		slog.WarnContext(ctx, "Failed to publish entry event",
			"op", op, "entry_id", e.ID, "error", err)
	}
}

// Close stops the snapshot loop. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}
