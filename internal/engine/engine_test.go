package engine_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glimpse/internal/engine"
	"glimpse/internal/identity"
	"glimpse/internal/location"
	"glimpse/internal/storage"
)

// fakeClock implements engine.Clock with a controllable time.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// manualScheduler implements engine.Scheduler and collects callbacks so
// tests decide when the bounce checks fire.
type manualScheduler struct {
	pending []func()
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) {
	s.pending = append(s.pending, f)
}

// Fire runs every pending callback and clears the queue.
func (s *manualScheduler) Fire() {
	pending := s.pending
	s.pending = nil
	for _, f := range pending {
		f()
	}
}

// switchableIdentity lets a test change the attributed visitor/session
// between calls.
type switchableIdentity struct {
	ids identity.IDs
}

func (r *switchableIdentity) Resolve(ctx context.Context) (identity.IDs, error) {
	return r.ids, nil
}

// fixedLocation resolves every session to the same place, or to nothing.
type fixedLocation struct {
	loc location.Location
	ok  bool
}

func (r fixedLocation) Resolve(ctx context.Context) (location.Location, bool) {
	return r.loc, r.ok
}

type testEngine struct {
	engine    *engine.Engine
	store     *storage.MemoryStore
	sessions  *storage.MemoryStore
	clock     *fakeClock
	scheduler *manualScheduler
	ids       *switchableIdentity
}

func newTestEngine(t *testing.T, opts ...func(*engine.Options)) *testEngine {
	t.Helper()

	te := &testEngine{
		store:     storage.NewMemoryStore(),
		sessions:  storage.NewMemoryStore(),
		clock:     &fakeClock{now: time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)},
		scheduler: &manualScheduler{},
		ids:       &switchableIdentity{ids: identity.IDs{Visitor: "v1", Session: "s1"}},
	}

	options := engine.Options{
		Store:    te.store,
		Sessions: te.sessions,
		Identity: te.ids,
		Location: fixedLocation{
			loc: location.Location{Code: "US", Name: "United States", Continent: location.ContinentNorthAmerica},
			ok:  true,
		},
		Clock:     te.clock,
		Scheduler: te.scheduler,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&options)
	}

	te.engine = engine.New(options)
	return te
}

func (te *testEngine) session(t *testing.T, id string) *engine.SessionRecord {
	t.Helper()

	data, ok, err := te.sessions.Get("session:" + id)
	require.NoError(t, err)
	require.True(t, ok, "expected session record %q", id)

	var sess engine.SessionRecord
	require.NoError(t, json.Unmarshal(data, &sess))
	return &sess
}

func TestRecordPageViewCounters(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.engine.RecordPageView(ctx, "/pricing", "Pricing", "https://google.com")
	stats := te.engine.GetStats()
	assert.Equal(t, 1, stats.TotalVisits)
	assert.Equal(t, 1, stats.TotalPageViews)
	assert.Equal(t, 1, stats.UniqueVisitors)
	assert.Equal(t, 1, stats.NewUsers, "first session ever should count as a new user")

	// Second view within the same session: page views move, visits do not.
	te.engine.RecordPageView(ctx, "/docs", "Docs", "")
	stats = te.engine.GetStats()
	assert.Equal(t, 1, stats.TotalVisits)
	assert.Equal(t, 2, stats.TotalPageViews)

	// A different visitor in a new session is returning at the store level,
	// so NewUsers stays put while visits and uniques advance.
	te.ids.ids = identity.IDs{Visitor: "v2", Session: "s2"}
	te.engine.RecordPageView(ctx, "/", "", "")
	stats = te.engine.GetStats()
	assert.Equal(t, 2, stats.TotalVisits)
	assert.Equal(t, 3, stats.TotalPageViews)
	assert.Equal(t, 2, stats.UniqueVisitors)
	assert.Equal(t, 1, stats.NewUsers)
}

func TestUniqueVisitorsIdempotent(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.engine.RecordPageView(ctx, "/a", "", "")
	te.ids.ids = identity.IDs{Visitor: "v1", Session: "s2"}
	te.engine.RecordPageView(ctx, "/b", "", "")

	stats := te.engine.GetStats()
	assert.Equal(t, 1, stats.UniqueVisitors, "same visitor across sessions counts once")
	assert.Equal(t, 2, stats.TotalVisits)

	month := te.clock.now.Format("January 2006")
	require.Contains(t, stats.MonthlyStats, month)
	assert.Equal(t, 1, stats.MonthlyStats[month].UniqueVisitors)
	assert.Equal(t, 2, stats.MonthlyStats[month].Visits)
	assert.Equal(t, 2, stats.MonthlyStats[month].PageViews)
}

func TestEmptyPathAndReferrerDefaults(t *testing.T) {
	te := newTestEngine(t)

	te.engine.RecordPageView(context.Background(), "", "Home", "")

	sess := te.session(t, "s1")
	require.Len(t, sess.Pages, 1)
	assert.Equal(t, "/", sess.Pages[0].Path)
	assert.Equal(t, "direct", sess.Referrer)
	assert.True(t, sess.IsNew)
}

func TestBounceCountedAfterWindow(t *testing.T) {
	te := newTestEngine(t)

	te.engine.RecordPageView(context.Background(), "/landing", "", "")
	require.Len(t, te.scheduler.pending, 1, "first page view should arm the bounce check")

	te.clock.Advance(engine.DefaultBounceWindow)
	te.scheduler.Fire()

	stats := te.engine.GetStats()
	assert.Equal(t, 1, stats.TotalVisits)
	sess := te.session(t, "s1")
	assert.True(t, sess.BounceRecorded)
	assert.InDelta(t, 100.0, stats.BounceRate, 0.001)

	// Firing again must not double count.
	te.scheduler.Fire()
	assert.InDelta(t, 100.0, te.engine.GetStats().BounceRate, 0.001)
}

func TestBounceNotCountedAfterSecondView(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.engine.RecordPageView(ctx, "/landing", "", "")
	te.engine.RecordPageView(ctx, "/pricing", "", "")

	te.clock.Advance(engine.DefaultBounceWindow)
	te.scheduler.Fire()

	stats := te.engine.GetStats()
	assert.Zero(t, stats.BounceRate)
	sess := te.session(t, "s1")
	assert.False(t, sess.BounceRecorded)
}

func TestBounceRate(t *testing.T) {
	t.Run("zero visits yield zero", func(t *testing.T) {
		te := newTestEngine(t)
		assert.Zero(t, te.engine.ComputeBounceRate())
	})

	t.Run("three bounces in ten visits yield thirty percent", func(t *testing.T) {
		te := newTestEngine(t)
		ctx := context.Background()

		sessions := []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9", "s10"}
		for i, id := range sessions {
			te.ids.ids = identity.IDs{Visitor: "v-" + id, Session: id}
			te.engine.RecordPageView(ctx, "/landing", "", "")
			if i >= 3 {
				te.engine.RecordPageView(ctx, "/next", "", "")
			}
			te.clock.Advance(engine.DefaultBounceWindow)
			te.scheduler.Fire()
		}

		assert.InDelta(t, 30.0, te.engine.ComputeBounceRate(), 0.001)
	})
}

func TestRecordSale(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.engine.RecordSale(ctx, 49.99)
	te.engine.RecordSale(ctx, 10.00)

	stats := te.engine.GetStats()
	assert.InDelta(t, 59.99, stats.Sales.Total, 0.001)
	assert.Equal(t, 2, stats.NewPurchases)
	require.Len(t, stats.Sales.Transactions, 2)
	for _, tx := range stats.Sales.Transactions {
		assert.True(t, strings.HasPrefix(tx.ID, "txn_"), "transaction id %q should carry the txn prefix", tx.ID)
		assert.Equal(t, te.clock.now.UnixMilli(), tx.Timestamp)
	}
	assert.NotEqual(t, stats.Sales.Transactions[0].ID, stats.Sales.Transactions[1].ID,
		"same-millisecond sales need distinct transaction ids")

	month := te.clock.now.Format("January 2006")
	assert.InDelta(t, 59.99, stats.Sales.Monthly[month], 0.001)
}

func TestRecordSaleRejectsNegativeAmount(t *testing.T) {
	te := newTestEngine(t)

	te.engine.RecordSale(context.Background(), -5)

	stats := te.engine.GetStats()
	assert.Zero(t, stats.Sales.Total)
	assert.Zero(t, stats.NewPurchases)
	assert.Empty(t, stats.Sales.Transactions)
}

func TestLocationCounters(t *testing.T) {
	t.Run("resolved location counted once per session", func(t *testing.T) {
		te := newTestEngine(t)
		ctx := context.Background()

		te.engine.RecordPageView(ctx, "/a", "", "")
		te.engine.RecordPageView(ctx, "/b", "", "")

		stats := te.engine.GetStats()
		require.Contains(t, stats.Countries, "US")
		assert.Equal(t, 1, stats.Countries["US"].Count, "geo counters move per session, not per page view")
		assert.Equal(t, "United States", stats.Countries["US"].Name)
		assert.Equal(t, 1, stats.Continents[location.ContinentNorthAmerica])
	})

	t.Run("unresolved location leaves counters untouched", func(t *testing.T) {
		te := newTestEngine(t, func(o *engine.Options) {
			o.Location = fixedLocation{ok: false}
		})

		te.engine.RecordPageView(context.Background(), "/a", "", "")

		stats := te.engine.GetStats()
		assert.Empty(t, stats.Countries)
		for name, count := range stats.Continents {
			assert.Zerof(t, count, "continent %s should stay at zero", name)
		}
	})
}

func TestResetClearsEverything(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.engine.RecordPageView(ctx, "/a", "", "")
	te.engine.RecordSale(ctx, 20)
	te.engine.Reset()

	stats := te.engine.GetStats()
	assert.Zero(t, stats.TotalVisits)
	assert.Zero(t, stats.TotalPageViews)
	assert.Zero(t, stats.UniqueVisitors)
	assert.Zero(t, stats.NewUsers)
	assert.Zero(t, stats.Sales.Total)
	assert.Empty(t, stats.Countries)
	assert.Len(t, stats.Continents, len(location.Continents), "reset record keeps the full continent enumeration")

	assert.Zero(t, te.store.Len())
	assert.Zero(t, te.sessions.Len())

	// A fresh session after reset is a new user again: the returning marker
	// was cleared with the rest of the store.
	te.ids.ids = identity.IDs{Visitor: "v9", Session: "s9"}
	te.engine.RecordPageView(ctx, "/", "", "")
	assert.Equal(t, 1, te.engine.GetStats().NewUsers)
}

func TestAggregatePersistsAcrossEngines(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.engine.RecordPageView(ctx, "/a", "", "")
	te.engine.RecordSale(ctx, 12.50)

	reloaded := engine.New(engine.Options{
		Store:    te.store,
		Sessions: storage.NewMemoryStore(),
		Identity: te.ids,
		Location: fixedLocation{ok: false},
		Clock:    te.clock,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	stats := reloaded.GetStats()
	assert.Equal(t, 1, stats.TotalVisits)
	assert.Equal(t, 1, stats.TotalPageViews)
	assert.Equal(t, 1, stats.UniqueVisitors)
	assert.InDelta(t, 12.50, stats.Sales.Total, 0.001)
	require.Contains(t, stats.Countries, "US")
	assert.Equal(t, 1, stats.Countries["US"].Count)
}

func TestCorruptAggregateFallsBackToZeroState(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set("analytics", []byte("{not json")))

	eng := engine.New(engine.Options{
		Store:    store,
		Sessions: storage.NewMemoryStore(),
		Identity: identity.Static{IDs: identity.IDs{Visitor: "v1", Session: "s1"}},
		Location: fixedLocation{ok: false},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	stats := eng.GetStats()
	assert.Zero(t, stats.TotalVisits)
	assert.Zero(t, stats.UniqueVisitors)
	assert.Len(t, stats.Continents, len(location.Continents))
}

func TestExpireSessions(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	ttl := 30 * time.Minute

	te.engine.RecordPageView(ctx, "/old", "", "")
	te.clock.Advance(ttl + time.Minute)
	te.ids.ids = identity.IDs{Visitor: "v2", Session: "s2"}
	te.engine.RecordPageView(ctx, "/fresh", "", "")

	expired := te.engine.ExpireSessions(ttl)
	assert.Equal(t, 1, expired)

	_, ok, err := te.sessions.Get("session:s1")
	require.NoError(t, err)
	assert.False(t, ok, "expired session should be deleted")
	_, ok, err = te.sessions.Get("session:s2")
	require.NoError(t, err)
	assert.True(t, ok, "fresh session should survive")
}
