package engine

import (
	"sort"
	"time"
)

// StatsSnapshot is the read-only projection served to dashboard
// collaborators. Every field is defensively defaulted: a caller never
// observes a nil map or slice.
type StatsSnapshot struct {
	TotalVisits    int                    `json:"totalVisits"`
	TotalPageViews int                    `json:"totalPageViews"`
	UniqueVisitors int                    `json:"uniqueVisitors"`
	BounceRate     float64                `json:"bounceRate"`
	Countries      map[string]CountryStat `json:"countries"`
	Continents     map[string]int         `json:"continents"`
	MonthlyStats   map[string]MonthlyStat `json:"monthlyStats"`
	Sales          SalesSnapshot          `json:"sales"`
	NewUsers       int                    `json:"newUsers"`
	NewPurchases   int                    `json:"newPurchases"`
	ContentViews   int                    `json:"contentViews"`
	LastUpdated    int64                  `json:"lastUpdated"`
}

// SalesSnapshot mirrors the sales aggregate with value semantics.
type SalesSnapshot struct {
	Total        float64            `json:"total"`
	Monthly      map[string]float64 `json:"monthly"`
	Transactions []Transaction      `json:"transactions"`
}

// MonthlyData carries the index-aligned monthly series for charting.
type MonthlyData struct {
	Labels         []string `json:"labels"`
	Visits         []int    `json:"visits"`
	PageViews      []int    `json:"pageViews"`
	UniqueVisitors []int    `json:"uniqueVisitors"`
}

// CountrySummary is the per-country projection of GetCountryData.
type CountrySummary struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// GetStats returns the combined projection of the aggregate record.
func (e *Engine) GetStats() StatsSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec := e.record
	snap := StatsSnapshot{
		TotalVisits:    rec.TotalVisits,
		TotalPageViews: rec.TotalPageViews,
		UniqueVisitors: len(rec.UniqueVisitors),
		BounceRate:     e.bounceRateLocked(),
		Countries:      make(map[string]CountryStat, len(rec.Countries)),
		Continents:     make(map[string]int, len(rec.Continents)),
		MonthlyStats:   make(map[string]MonthlyStat, len(rec.MonthlyStats)),
		Sales: SalesSnapshot{
			Total:        rec.Sales.Total,
			Monthly:      make(map[string]float64, len(rec.Sales.Monthly)),
			Transactions: make([]Transaction, len(rec.Sales.Transactions)),
		},
		NewUsers:     rec.NewUsers,
		NewPurchases: rec.NewPurchases,
		ContentViews: rec.ContentViews,
		LastUpdated:  rec.LastUpdated,
	}

	for code, country := range rec.Countries {
		snap.Countries[code] = *country
	}
	for name, count := range rec.Continents {
		snap.Continents[name] = count
	}
	for label, bucket := range rec.MonthlyStats {
		snap.MonthlyStats[label] = *bucket
	}
	for label, amount := range rec.Sales.Monthly {
		snap.Sales.Monthly[label] = amount
	}
	copy(snap.Sales.Transactions, rec.Sales.Transactions)

	return snap
}

// GetMonthlyData derives the month series from the pre-maintained rollup
// map, falling back to the session audit when a migrated record carries no
// buckets. Labels sort chronologically by parsed date, not lexically.
func (e *Engine) GetMonthlyData() MonthlyData {
	e.mu.Lock()
	defer e.mu.Unlock()

	buckets := e.record.MonthlyStats
	if len(buckets) == 0 && len(e.record.SessionAudit) > 0 {
		buckets = make(map[string]*MonthlyStat)
		for _, s := range e.record.SessionAudit {
			key := monthKey(time.UnixMilli(s.StartTime))
			bucket, ok := buckets[key]
			if !ok {
				bucket = &MonthlyStat{}
				buckets[key] = bucket
			}
			bucket.Visits++
		}
	}

	data := MonthlyData{
		Labels:         []string{},
		Visits:         []int{},
		PageViews:      []int{},
		UniqueVisitors: []int{},
	}
	if len(buckets) == 0 {
		return data
	}

	labels := make([]string, 0, len(buckets))
	for label := range buckets {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		ti, erri := time.Parse(monthKeyLayout, labels[i])
		tj, errj := time.Parse(monthKeyLayout, labels[j])
		if erri != nil || errj != nil {
			return labels[i] < labels[j]
		}
		return ti.Before(tj)
	})

	for _, label := range labels {
		bucket := buckets[label]
		data.Labels = append(data.Labels, label)
		data.Visits = append(data.Visits, bucket.Visits)
		data.PageViews = append(data.PageViews, bucket.PageViews)
		data.UniqueVisitors = append(data.UniqueVisitors, bucket.UniqueVisitors)
	}
	return data
}

// GetCountryData returns the per-country counts keyed by ISO code.
func (e *Engine) GetCountryData() map[string]CountrySummary {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]CountrySummary, len(e.record.Countries))
	for code, country := range e.record.Countries {
		out[code] = CountrySummary{Name: country.Name, Count: country.Count}
	}
	return out
}
