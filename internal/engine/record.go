package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"glimpse/internal/location"
)

// SchemaVersion is the current aggregate record schema. Version 1 records
// (written before the field existed) are migrated on first load.
const SchemaVersion = 2

// monthKeyLayout formats the bucket labels used by monthly rollups, e.g.
// "January 2025".
const monthKeyLayout = "January 2006"

func monthKey(t time.Time) string {
	return t.Format(monthKeyLayout)
}

// VisitorSet is the canonical in-memory representation of the unique
// visitor ids: a set. Persisted form is a sorted id sequence, but decoding
// accepts every shape historical writers produced.
type VisitorSet map[string]struct{}

// Add inserts id and reports whether it was not already present.
func (s VisitorSet) Add(id string) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// MarshalJSON writes the canonical persisted shape: a sorted sequence.
func (s VisitorSet) MarshalJSON() ([]byte, error) {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return json.Marshal(ids)
}

// UnmarshalJSON reconciles the three historical shapes into a set: an id
// sequence, a mapping whose truthy-valued keys are ids, or a serialized
// set (which degenerates to the mapping shape). This is the single decode
// boundary; no other code branches on the stored shape.
func (s *VisitorSet) UnmarshalJSON(data []byte) error {
	*s = make(VisitorSet)

	var ids []string
	if err := json.Unmarshal(data, &ids); err == nil {
		for _, id := range ids {
			(*s)[id] = struct{}{}
		}
		return nil
	}

	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(data, &keyed); err == nil {
		for id, raw := range keyed {
			if truthy(raw) {
				(*s)[id] = struct{}{}
			}
		}
		return nil
	}

	var null any
	if err := json.Unmarshal(data, &null); err == nil && null == nil {
		return nil
	}

	return fmt.Errorf("unsupported uniqueVisitors shape: %s", string(data))
}

// truthy applies JavaScript truthiness to a JSON value.
func truthy(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		// Objects and arrays are truthy regardless of contents.
		return true
	}
}

// CountryStat is the per-country rollup inside the aggregate record.
type CountryStat struct {
	Name      string `json:"name"`
	Count     int    `json:"count"`
	Continent string `json:"continent"`
}

// MonthlyStat is one month's bucket in the monthly rollup.
type MonthlyStat struct {
	Visits         int `json:"visits"`
	PageViews      int `json:"pageViews"`
	UniqueVisitors int `json:"uniqueVisitors"`
}

// Transaction is one recorded sale.
type Transaction struct {
	Amount    float64 `json:"amount"`
	Timestamp int64   `json:"timestamp"`
	ID        string  `json:"id"`
}

// Sales aggregates revenue.
type Sales struct {
	Total        float64            `json:"total"`
	Monthly      map[string]float64 `json:"monthly"`
	Transactions []Transaction      `json:"transactions"`
}

// SessionSummary is the compact audit entry kept per session, retained for
// monthly rollup re-derivation.
type SessionSummary struct {
	ID        string `json:"id"`
	StartTime int64  `json:"startTime"`
	IsNew     bool   `json:"isNew"`
}

// legacyPageView captures the raw per-view audit entries version 1 records
// carried; only the timestamp matters for migration.
type legacyPageView struct {
	Path      string `json:"path"`
	Timestamp int64  `json:"timestamp"`
}

// AggregateRecord is the durable cross-session analytics state for one
// origin. Timestamps are unix milliseconds for compatibility with records
// written by earlier schema versions.
type AggregateRecord struct {
	SchemaVersion  int                     `json:"schemaVersion"`
	TotalVisits    int                     `json:"totalVisits"`
	TotalPageViews int                     `json:"totalPageViews"`
	UniqueVisitors VisitorSet              `json:"uniqueVisitors"`
	BounceCount    int                     `json:"bounceCount"`
	Countries      map[string]*CountryStat `json:"countries"`
	Continents     map[string]int          `json:"continents"`
	MonthlyStats   map[string]*MonthlyStat `json:"monthlyStats"`
	Sales          Sales                   `json:"sales"`
	NewUsers       int                     `json:"newUsers"`
	NewPurchases   int                     `json:"newPurchases"`
	ContentViews   int                     `json:"contentViews"`
	SessionAudit   []SessionSummary        `json:"sessionAudit,omitempty"`
	LastUpdated    int64                   `json:"lastUpdated"`

	// Version 1 audit sequences, consumed by migration and never rewritten.
	LegacySessions  []SessionSummary `json:"sessions,omitempty"`
	LegacyPageViews []legacyPageView `json:"pageViews,omitempty"`
}

// NewAggregateRecord returns the zero-state record: every counter zero,
// every continent key present. Fresh records are never seeded from other
// stores.
func NewAggregateRecord(now time.Time) *AggregateRecord {
	continents := make(map[string]int, len(location.Continents))
	for _, name := range location.Continents {
		continents[name] = 0
	}
	return &AggregateRecord{
		SchemaVersion:  SchemaVersion,
		UniqueVisitors: make(VisitorSet),
		Countries:      make(map[string]*CountryStat),
		Continents:     continents,
		MonthlyStats:   make(map[string]*MonthlyStat),
		Sales: Sales{
			Monthly:      make(map[string]float64),
			Transactions: []Transaction{},
		},
		LastUpdated: now.UnixMilli(),
	}
}

// DecodeAggregateRecord parses a persisted payload, reconciles legacy
// shapes, and migrates old schema versions. It returns an error only for
// payloads that cannot be interpreted at all; callers treat that as a
// corrupt record and fall back to the zero state.
func DecodeAggregateRecord(data []byte, now time.Time) (*AggregateRecord, error) {
	var rec AggregateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode aggregate record: %w", err)
	}
	rec.normalize(now)
	return &rec, nil
}

// normalize fills absent maps, completes the continent enumeration, and
// runs the v1 → v2 migration. It runs on every load, not only at creation:
// a record written by an older schema must remain loadable.
func (r *AggregateRecord) normalize(now time.Time) {
	if r.UniqueVisitors == nil {
		r.UniqueVisitors = make(VisitorSet)
	}
	if r.Countries == nil {
		r.Countries = make(map[string]*CountryStat)
	}
	if r.Continents == nil {
		r.Continents = make(map[string]int, len(location.Continents))
	}
	for _, name := range location.Continents {
		if _, ok := r.Continents[name]; !ok {
			r.Continents[name] = 0
		}
	}
	if r.MonthlyStats == nil {
		r.MonthlyStats = make(map[string]*MonthlyStat)
	}
	if r.Sales.Monthly == nil {
		r.Sales.Monthly = make(map[string]float64)
	}
	if r.Sales.Transactions == nil {
		r.Sales.Transactions = []Transaction{}
	}
	if r.LastUpdated == 0 {
		r.LastUpdated = now.UnixMilli()
	}

	if r.SchemaVersion < SchemaVersion {
		r.migrateV1()
		r.SchemaVersion = SchemaVersion
	}
}

// migrateV1 folds the version 1 audit arrays into the current layout.
// Monthly rollups are re-derived from the raw sequences when the record
// predates the pre-maintained monthlyStats map.
func (r *AggregateRecord) migrateV1() {
	if len(r.MonthlyStats) == 0 && (len(r.LegacySessions) > 0 || len(r.LegacyPageViews) > 0) {
		for _, s := range r.LegacySessions {
			r.monthly(time.UnixMilli(s.StartTime)).Visits++
		}
		for _, pv := range r.LegacyPageViews {
			r.monthly(time.UnixMilli(pv.Timestamp)).PageViews++
		}
	}

	if len(r.LegacySessions) > 0 {
		r.SessionAudit = append(r.SessionAudit, r.LegacySessions...)
	}
	r.LegacySessions = nil
	r.LegacyPageViews = nil
}

// monthly returns the bucket for t, creating it if absent.
func (r *AggregateRecord) monthly(t time.Time) *MonthlyStat {
	key := monthKey(t)
	bucket, ok := r.MonthlyStats[key]
	if !ok {
		bucket = &MonthlyStat{}
		r.MonthlyStats[key] = bucket
	}
	return bucket
}

// Encode serializes the record in the canonical v2 shape.
func (r *AggregateRecord) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// PageVisit is one page entry inside a session record.
type PageVisit struct {
	Path      string `json:"path"`
	Timestamp int64  `json:"timestamp"`
	Title     string `json:"title"`
}

func decodeSession(data []byte) (*SessionRecord, error) {
	var sess SessionRecord
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session record: %w", err)
	}
	if sess.Pages == nil {
		sess.Pages = []PageVisit{}
	}
	return &sess, nil
}

func encodeSession(sess *SessionRecord) ([]byte, error) {
	return json.Marshal(sess)
}

// SessionRecord is the ephemeral per-session state: pages viewed in the
// current visit, the referrer, and the location assigned once at session
// start.
type SessionRecord struct {
	ID             string             `json:"id"`
	StartTime      int64              `json:"startTime"`
	Pages          []PageVisit        `json:"pages"`
	Referrer       string             `json:"referrer"`
	IsNew          bool               `json:"isNew"`
	Location       *location.Location `json:"location,omitempty"`
	BounceRecorded bool               `json:"bounceRecorded,omitempty"`
}
