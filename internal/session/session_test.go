package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tesouraria/internal/amqp"
	"tesouraria/internal/core"
	"tesouraria/internal/store"
	"tesouraria/internal/store/memory"
	"tesouraria/internal/tenant"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []amqp.EntryEvent
}

func (p *capturingPublisher) PublishEntryEvent(_ context.Context, msg *amqp.EntryEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *msg)
	return nil
}

func (p *capturingPublisher) all() []amqp.EntryEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EntryEvent, len(p.events))
	copy(out, p.events)
	return out
}

type fixture struct {
	store     store.Store
	manager   *Manager
	publisher *capturingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	st := memory.New()
	t.Cleanup(func() { st.Close() })

	tenants := []tenant.Tenant{
		{ID: "penielzn", Name: "Igreja Peniel Zona Norte"},
		{ID: "other", Name: "Other Church"},
	}
	resolver := tenant.NewResolver(st, tenants)
	authorizer := tenant.NewSharedSecretAuthorizer(st)
	require.NoError(t, authorizer.SetSecret(ctx, "penielzn", "delete-me"))

	publisher := &capturingPublisher{}
	manager := NewManager(st, resolver, authorizer, publisher)
	t.Cleanup(manager.CloseAll)

	return &fixture{store: st, manager: manager, publisher: publisher}
}

func (f *fixture) addMember(t *testing.T, tenantID, userID string) {
	t.Helper()
	err := f.store.Put(context.Background(), "tenants/"+tenantID+"/members/"+userID, true)
	require.NoError(t, err)
}

// waitFor polls until cond holds or the deadline passes. Snapshot
// application is asynchronous, so reads after a write may lag briefly.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition not reached in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func entry(day int, category, title string, value float64) core.Entry {
	p := core.CurrentPeriod(time.Now())
	return core.Entry{
		Date:     time.Date(p.Year, time.Month(p.Month), day, 10, 0, 0, 0, time.UTC),
		Category: category,
		Title:    title,
		Value:    decimal.NewFromFloat(value),
	}
}

func TestManager_OpenResolvesPartition(t *testing.T) {
	f := newFixture(t)
	f.addMember(t, "penielzn", "user-1")

	s, err := f.manager.Open(context.Background(), "user-1")
	require.NoError(t, err)

	ov := s.Overview()
	assert.True(t, ov.HasTenant)
	assert.Equal(t, "penielzn", ov.Tenant.ID)
	assert.False(t, ov.Admin)
	assert.Empty(t, ov.Entries)
	assert.True(t, ov.Totals.Balance.IsZero())
}

func TestManager_OpenWithoutMembership(t *testing.T) {
	f := newFixture(t)

	s, err := f.manager.Open(context.Background(), "stranger")
	require.NoError(t, err)

	ov := s.Overview()
	assert.False(t, ov.HasTenant)
	assert.Empty(t, ov.Entries)

	_, err = s.AddEntry(context.Background(), entry(5, "tithe", "Dízimo", 100))
	assert.ErrorIs(t, err, ErrNoTenant)

	_, err = s.DeleteEntry(context.Background(), "whatever", "delete-me")
	assert.ErrorIs(t, err, ErrNoTenant)
}

// stalledStore accepts subscriptions but never delivers a snapshot, and
// records whether the subscription was released.
type stalledStore struct {
	mu        sync.Mutex
	cancelled bool
}

func (s *stalledStore) Subscribe(context.Context, string) (<-chan []store.Record, store.CancelFunc, error) {
	ch := make(chan []store.Record)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			close(ch)
			s.mu.Lock()
			s.cancelled = true
			s.mu.Unlock()
		})
	}, nil
}

func (s *stalledStore) ReadOnce(_ context.Context, path string) (any, error) {
	if strings.HasPrefix(path, "tenants/penielzn/members/") {
		return true, nil
	}
	return nil, store.ErrNotFound
}

func (s *stalledStore) Write(context.Context, string, store.Record) (string, error) { return "", nil }
func (s *stalledStore) Put(context.Context, string, any) error                      { return nil }
func (s *stalledStore) Remove(context.Context, string) error                        { return nil }
func (s *stalledStore) Close() error                                                { return nil }

func (s *stalledStore) wasCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func TestManager_OpenTimeoutReleasesSubscription(t *testing.T) {
	st := &stalledStore{}
	resolver := tenant.NewResolver(st, []tenant.Tenant{{ID: "penielzn", Name: "Igreja Peniel Zona Norte"}})
	manager := NewManager(st, resolver, tenant.NewSharedSecretAuthorizer(st), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := manager.Open(ctx, "user-1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, st.wasCancelled(), "subscription kept open after failed session open")

	_, ok := manager.Get("user-1")
	assert.False(t, ok)
}

func TestManager_OpenAmbiguousMembership(t *testing.T) {
	f := newFixture(t)
	f.addMember(t, "penielzn", "user-1")
	f.addMember(t, "other", "user-1")

	_, err := f.manager.Open(context.Background(), "user-1")
	assert.ErrorIs(t, err, tenant.ErrAmbiguousMembership)
}

func TestManager_OpenReturnsSameSession(t *testing.T) {
	f := newFixture(t)
	f.addMember(t, "penielzn", "user-1")

	s1, err := f.manager.Open(context.Background(), "user-1")
	require.NoError(t, err)
	s2, err := f.manager.Open(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Same(t, s1, s2)

	got, ok := f.manager.Get("user-1")
	require.True(t, ok)
	assert.Same(t, s1, got)
}

func TestSession_AddEntryAppearsInOverview(t *testing.T) {
	f := newFixture(t)
	f.addMember(t, "penielzn", "user-1")

	s, err := f.manager.Open(context.Background(), "user-1")
	require.NoError(t, err)

	added, err := s.AddEntry(context.Background(), entry(10, "tithe", "Dízimo João", 250.50))
	require.NoError(t, err)
	require.NotEmpty(t, added.ID)

	waitFor(t, func() bool { return len(s.Overview().Entries) == 1 })

	ov := s.Overview()
	got := ov.Entries[0]
	assert.Equal(t, added.ID, got.ID)
	assert.Equal(t, "tithe", got.Category)
	assert.Equal(t, "Dízimo João", got.Title)
	assert.True(t, got.Value.Equal(decimal.NewFromFloat(250.50)))
	assert.True(t, ov.Totals.Income.Equal(decimal.NewFromFloat(250.50)))
	assert.True(t, ov.Totals.Expense.IsZero())

	events := f.publisher.all()
	require.Len(t, events, 1)
	assert.Equal(t, amqp.OpCreated, events[0].Op)
	assert.Equal(t, "penielzn", events[0].Tenant)
	assert.Equal(t, added.ID, events[0].EntryID)
}

func TestSession_AddEntryValidation(t *testing.T) {
	f := newFixture(t)
	f.addMember(t, "penielzn", "user-1")

	s, err := f.manager.Open(context.Background(), "user-1")
	require.NoError(t, err)

	// Everything wrong at once; every failure is reported together.
	_, err = s.AddEntry(context.Background(), core.Entry{Value: decimal.NewFromInt(-1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidDate)
	assert.ErrorIs(t, err, core.ErrInvalidCategory)
	assert.ErrorIs(t, err, core.ErrEmptyTitle)
	assert.ErrorIs(t, err, core.ErrInvalidValue)

	assert.Empty(t, f.publisher.all())
}

func TestSession_DeleteEntry(t *testing.T) {
	f := newFixture(t)
	f.addMember(t, "penielzn", "user-1")
	ctx := context.Background()

	s, err := f.manager.Open(ctx, "user-1")
	require.NoError(t, err)

	added, err := s.AddEntry(ctx, entry(12, "electricity", "Conta de luz", 180))
	require.NoError(t, err)
	waitFor(t, func() bool { return len(s.Overview().Entries) == 1 })

	// Wrong secret fails closed and leaves the entry alone.
	_, err = s.DeleteEntry(ctx, added.ID, "wrong")
	assert.ErrorIs(t, err, ErrDeleteNotAllowed)
	assert.Len(t, s.Overview().Entries, 1)

	_, err = s.DeleteEntry(ctx, "missing-id", "delete-me")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	removed, err := s.DeleteEntry(ctx, added.ID, "delete-me")
	require.NoError(t, err)
	assert.Equal(t, added.ID, removed.ID)
	waitFor(t, func() bool { return len(s.Overview().Entries) == 0 })

	events := f.publisher.all()
	require.Len(t, events, 2)
	assert.Equal(t, amqp.OpDeleted, events[1].Op)
	assert.Equal(t, added.ID, events[1].EntryID)
}

func TestSession_AdvanceRecomputes(t *testing.T) {
	f := newFixture(t)
	f.addMember(t, "penielzn", "user-1")
	ctx := context.Background()

	s, err := f.manager.Open(ctx, "user-1")
	require.NoError(t, err)

	_, err = s.AddEntry(ctx, entry(15, "offering", "Oferta", 80))
	require.NoError(t, err)
	waitFor(t, func() bool { return len(s.Overview().Entries) == 1 })

	start := s.Period()

	next := s.Advance(1)
	assert.Equal(t, start.Advance(1), next)
	assert.Empty(t, s.Overview().Entries)
	assert.True(t, s.Overview().Totals.Income.IsZero())

	back := s.Advance(-1)
	assert.Equal(t, start, back)
	assert.Len(t, s.Overview().Entries, 1)
}

func TestSession_SetPeriodFilters(t *testing.T) {
	f := newFixture(t)
	f.addMember(t, "penielzn", "user-1")
	ctx := context.Background()

	s, err := f.manager.Open(ctx, "user-1")
	require.NoError(t, err)

	march := core.Period{Year: 2024, Month: 3}
	_, err = s.AddEntry(ctx, core.Entry{
		Date:     time.Date(2024, time.March, 3, 9, 0, 0, 0, time.UTC),
		Category: "tithe",
		Title:    "Dízimo",
		Value:    decimal.NewFromInt(300),
	})
	require.NoError(t, err)

	s.SetPeriod(march)
	waitFor(t, func() bool { return len(s.Overview().Entries) == 1 })
	assert.Equal(t, "Março de 2024", s.Period().Label())

	s.SetPeriod(core.Period{Year: 2024, Month: 4})
	assert.Empty(t, s.Overview().Entries)
}

func TestManager_ReopenAfterMembershipChange(t *testing.T) {
	f := newFixture(t)
	f.addMember(t, "penielzn", "user-1")
	ctx := context.Background()

	s, err := f.manager.Open(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "penielzn", s.Overview().Tenant.ID)

	// Move the user, then reopen.
	require.NoError(t, f.store.Remove(ctx, "tenants/penielzn/members/user-1"))
	f.addMember(t, "other", "user-1")

	s2, err := f.manager.Reopen(ctx, "user-1")
	require.NoError(t, err)
	assert.NotSame(t, s, s2)
	assert.Equal(t, "other", s2.Overview().Tenant.ID)
}
