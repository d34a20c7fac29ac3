// Package engine implements the analytics aggregation core: it applies
// page-view, session and sale events to a durable aggregate record and
// derives summary metrics on demand. Every public operation is total;
// failures degrade to defaults and are logged, never surfaced to callers.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"glimpse/internal/identity"
	"glimpse/internal/location"
	"glimpse/internal/storage"
)

// Store keys.
const (
	aggregateKey       = "analytics"
	returningMarkerKey = "returning_visitor"
	sessionKeyPrefix   = "session:"
)

// DefaultBounceWindow is the observation window after which a single-page
// session counts as a bounce.
const DefaultBounceWindow = 30 * time.Second

// Options configures a new Engine. Store, Sessions, Identity and Location
// are required; the rest default.
type Options struct {
	Store     storage.Store     // persistent, holds the aggregate record
	Sessions  storage.Store     // session-scoped records
	Identity  identity.Resolver // attributes operations to visitor/session
	Location  location.Resolver // assigns a location once per session
	Clock     Clock
	Scheduler Scheduler
	Logger    *slog.Logger

	BounceWindow    time.Duration
	SessionAuditMax int // retained session audit entries, 0 = default
	TransactionsMax int // retained transactions, 0 = default
}

// Engine owns the aggregate record. Operations serialize on an internal
// mutex, the in-process analogue of the event loop the record was designed
// for. Writers in other processes sharing the same store remain
// last-writer-wins at whole-record granularity.
type Engine struct {
	mu        sync.Mutex
	store     storage.Store
	sessions  storage.Store
	identity  identity.Resolver
	location  location.Resolver
	clock     Clock
	scheduler Scheduler
	logger    *slog.Logger

	bounceWindow time.Duration
	auditMax     int
	txMax        int

	// In-memory state is authoritative for the process lifetime; store
	// writes are best-effort.
	record *AggregateRecord
}

// New creates an engine and loads the aggregate record. A missing or
// corrupt payload yields the zero-state record.
func New(opts Options) *Engine {
	e := &Engine{
		store:        opts.Store,
		sessions:     opts.Sessions,
		identity:     opts.Identity,
		location:     opts.Location,
		clock:        opts.Clock,
		scheduler:    opts.Scheduler,
		logger:       opts.Logger,
		bounceWindow: opts.BounceWindow,
		auditMax:     opts.SessionAuditMax,
		txMax:        opts.TransactionsMax,
	}
	if e.clock == nil {
		e.clock = SystemClock{}
	}
	if e.scheduler == nil {
		e.scheduler = TimerScheduler{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.bounceWindow <= 0 {
		e.bounceWindow = DefaultBounceWindow
	}
	if e.auditMax <= 0 {
		e.auditMax = 500
	}
	if e.txMax <= 0 {
		e.txMax = 1000
	}

	e.record = e.loadAggregate()
	return e
}

// loadAggregate reads and reconciles the persisted record. Deserialization
// failure is non-fatal: the engine continues from the zero state.
func (e *Engine) loadAggregate() *AggregateRecord {
	now := e.clock.Now()

	data, ok, err := e.store.Get(aggregateKey)
	if err != nil {
		e.logger.Warn("Failed to load aggregate record, starting from zero state", slog.Any("error", err))
		return NewAggregateRecord(now)
	}
	if !ok {
		return NewAggregateRecord(now)
	}

	rec, err := DecodeAggregateRecord(data, now)
	if err != nil {
		e.logger.Warn("Discarding corrupt aggregate record", slog.Any("error", err))
		return NewAggregateRecord(now)
	}
	return rec
}

// RecordPageView records one page view: it creates the session on its
// first call per session id, adds the visitor to the unique set
// (idempotent), bumps the page-view counters and monthly bucket, appends
// the page to the session record, and persists both records best-effort.
// An empty path defaults to "/".
func (e *Engine) RecordPageView(ctx context.Context, path, title, referrer string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids, err := e.identity.Resolve(ctx)
	if err != nil {
		e.logger.Warn("Failed to resolve identity for page view", slog.Any("error", err))
		return
	}
	if path == "" {
		path = "/"
	}
	now := e.clock.Now()

	sess := e.loadSession(ids.Session)
	if sess == nil {
		sess = e.startSession(ctx, ids, referrer, now)
	}

	e.record.TotalPageViews++
	e.record.monthly(now).PageViews++
	if e.record.UniqueVisitors.Add(ids.Visitor) {
		e.record.monthly(now).UniqueVisitors++
	}

	sess.Pages = append(sess.Pages, PageVisit{Path: path, Timestamp: now.UnixMilli(), Title: title})
	if len(sess.Pages) == 1 {
		e.scheduleBounceCheck(ids.Session)
	}

	e.saveSession(sess)
	e.persistAggregate(now)
}

// startSession creates the session record: new-visitor detection via the
// set-once returning marker, visit counters, one location assignment, and
// a compact audit entry.
func (e *Engine) startSession(ctx context.Context, ids identity.IDs, referrer string, now time.Time) *SessionRecord {
	_, returning, err := e.store.Get(returningMarkerKey)
	if err != nil {
		e.logger.Warn("Failed to read returning-visitor marker", slog.Any("error", err))
	}
	isNew := !returning
	if isNew {
		if err := e.store.Set(returningMarkerKey, []byte("1")); err != nil {
			e.logger.Warn("Failed to set returning-visitor marker", slog.Any("error", err))
		}
	}

	if referrer == "" {
		referrer = "direct"
	}
	sess := &SessionRecord{
		ID:        ids.Session,
		StartTime: now.UnixMilli(),
		Pages:     []PageVisit{},
		Referrer:  referrer,
		IsNew:     isNew,
	}

	e.record.TotalVisits++
	e.record.monthly(now).Visits++
	if isNew {
		e.record.NewUsers++
	}

	// The location is resolved exactly once per session and cached on the
	// session record; geographic counters move once per session.
	if loc, ok := e.location.Resolve(ctx); ok {
		sess.Location = &loc
		e.applyLocation(loc)
	}

	e.record.SessionAudit = append(e.record.SessionAudit, SessionSummary{
		ID:        sess.ID,
		StartTime: sess.StartTime,
		IsNew:     isNew,
	})
	if len(e.record.SessionAudit) > e.auditMax {
		e.record.SessionAudit = e.record.SessionAudit[len(e.record.SessionAudit)-e.auditMax:]
	}

	return sess
}

func (e *Engine) applyLocation(loc location.Location) {
	country, ok := e.record.Countries[loc.Code]
	if !ok {
		country = &CountryStat{Name: loc.Name, Continent: loc.Continent}
		e.record.Countries[loc.Code] = country
	}
	country.Count++

	// Counters exist only for the closed continent enumeration.
	if _, ok := e.record.Continents[loc.Continent]; ok {
		e.record.Continents[loc.Continent]++
	}
}

// RecordSale records a sale: running total, monthly bucket, and a
// transaction entry whose id tolerates same-millisecond collisions.
// Negative amounts are rejected.
func (e *Engine) RecordSale(ctx context.Context, amount float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount < 0 {
		e.logger.Warn("Ignoring sale with negative amount", slog.Float64("amount", amount))
		return
	}
	now := e.clock.Now()

	e.record.Sales.Total += amount
	e.record.NewPurchases++
	e.record.Sales.Monthly[monthKey(now)] += amount
	e.record.Sales.Transactions = append(e.record.Sales.Transactions, Transaction{
		Amount:    amount,
		Timestamp: now.UnixMilli(),
		ID:        identity.NewID("txn", now),
	})
	if len(e.record.Sales.Transactions) > e.txMax {
		e.record.Sales.Transactions = e.record.Sales.Transactions[len(e.record.Sales.Transactions)-e.txMax:]
	}

	e.persistAggregate(now)
}

// scheduleBounceCheck arms the fire-and-forget bounce timer for a session.
// The check is idempotent: it re-reads the session record at fire time, so
// a second page view arriving before the timer fires is observed and the
// bounce is not counted.
func (e *Engine) scheduleBounceCheck(sessionID string) {
	e.scheduler.AfterFunc(e.bounceWindow, func() {
		e.checkBounce(sessionID)
	})
}

func (e *Engine) checkBounce(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess := e.loadSession(sessionID)
	if sess == nil || len(sess.Pages) != 1 || sess.BounceRecorded {
		return
	}

	sess.BounceRecorded = true
	e.record.BounceCount++
	e.saveSession(sess)
	e.persistAggregate(e.clock.Now())
}

// ComputeBounceRate returns bounceCount/totalVisits as a percentage in
// [0,100]. Zero visits yield zero.
func (e *Engine) ComputeBounceRate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bounceRateLocked()
}

func (e *Engine) bounceRateLocked() float64 {
	if e.record.TotalVisits == 0 {
		return 0
	}
	rate := float64(e.record.BounceCount) / float64(e.record.TotalVisits) * 100
	if rate > 100 {
		return 100
	}
	return rate
}

// Reset clears both stores and reinitializes the aggregate to the zero
// state. Nothing is reseeded.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Reset(); err != nil {
		e.logger.Warn("Failed to reset persistent store", slog.Any("error", err))
	}
	if err := e.sessions.Reset(); err != nil {
		e.logger.Warn("Failed to reset session store", slog.Any("error", err))
	}
	e.record = NewAggregateRecord(e.clock.Now())
}

// ExpireSessions removes session records older than ttl and returns how
// many were dropped. Called by the background cleanup job; tab close has
// no explicit signal, so age is the only end-of-session marker.
func (e *Engine) ExpireSessions(ttl time.Duration) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	keys, err := e.sessions.Keys(sessionKeyPrefix)
	if err != nil {
		e.logger.Warn("Failed to list session records", slog.Any("error", err))
		return 0
	}

	cutoff := e.clock.Now().Add(-ttl).UnixMilli()
	expired := 0
	for _, key := range keys {
		data, ok, err := e.sessions.Get(key)
		if err != nil || !ok {
			continue
		}
		sess, err := decodeSession(data)
		if err != nil || sess.StartTime < cutoff {
			if err := e.sessions.Delete(key); err != nil {
				e.logger.Warn("Failed to delete expired session", slog.String("key", key), slog.Any("error", err))
				continue
			}
			expired++
		}
	}
	return expired
}

// loadSession reads a session record, tolerating corrupt payloads.
func (e *Engine) loadSession(id string) *SessionRecord {
	data, ok, err := e.sessions.Get(sessionKeyPrefix + id)
	if err != nil {
		e.logger.Warn("Failed to load session record", slog.String("session", id), slog.Any("error", err))
		return nil
	}
	if !ok {
		return nil
	}

	sess, err := decodeSession(data)
	if err != nil {
		e.logger.Warn("Discarding corrupt session record", slog.String("session", id), slog.Any("error", err))
		return nil
	}
	return sess
}

func (e *Engine) saveSession(sess *SessionRecord) {
	data, err := encodeSession(sess)
	if err != nil {
		e.logger.Warn("Failed to encode session record", slog.String("session", sess.ID), slog.Any("error", err))
		return
	}
	if err := e.sessions.Set(sessionKeyPrefix+sess.ID, data); err != nil {
		e.logger.Warn("Failed to persist session record", slog.String("session", sess.ID), slog.Any("error", err))
	}
}

// persistAggregate writes the record best-effort: a store failure leaves
// the in-memory state authoritative for the rest of the process lifetime.
func (e *Engine) persistAggregate(now time.Time) {
	e.record.LastUpdated = now.UnixMilli()

	data, err := e.record.Encode()
	if err != nil {
		e.logger.Warn("Failed to encode aggregate record", slog.Any("error", err))
		return
	}
	if err := e.store.Set(aggregateKey, data); err != nil {
		e.logger.Warn("Failed to persist aggregate record", slog.Any("error", err))
	}
}
