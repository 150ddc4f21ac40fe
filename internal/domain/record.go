package domain

import (
	"sort"
	"time"
)

// CaseRecord is one row of the NYT county table: cumulative counts for a
// single county on a single day. Records are never mutated after parsing.
type CaseRecord struct {
	Date   time.Time `json:"date"`
	County string    `json:"county"`
	State  string    `json:"state"`
	FIPS   string    `json:"fips,omitempty"`
	Cases  int       `json:"cases"`
	Deaths int       `json:"deaths"`
}

// LocationKey returns the "<county>, <state>" identity used for grouping.
func (r CaseRecord) LocationKey() string {
	return r.County + ", " + r.State
}

// AnnotatedRecord is a CaseRecord carrying its location's risk assessment.
type AnnotatedRecord struct {
	CaseRecord
	Location   string `json:"location"`
	RiskBucket int    `json:"risk_bucket"`
	RiskLabel  string `json:"risk_label"`
}

// LocationSeries is one location's cumulative case counts, date ascending.
type LocationSeries struct {
	Key    string
	Values []float64
}

// BuildSeries groups case records into per-location series. The returned
// slice preserves discovery order (first appearance in the record stream),
// which later serves as the stable tie-break for ranking. Values within a
// series are sorted by date ascending.
func BuildSeries(records []CaseRecord) []LocationSeries {
	type dated struct {
		date  time.Time
		cases float64
	}

	index := make(map[string]int)
	order := make([]string, 0)
	points := make(map[string][]dated)

	for _, r := range records {
		key := r.LocationKey()
		if _, ok := index[key]; !ok {
			index[key] = len(order)
			order = append(order, key)
		}
		points[key] = append(points[key], dated{date: r.Date, cases: float64(r.Cases)})
	}

	series := make([]LocationSeries, 0, len(order))
	for _, key := range order {
		pts := points[key]
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].date.Before(pts[j].date) })
		values := make([]float64, len(pts))
		for i, p := range pts {
			values[i] = p.cases
		}
		series = append(series, LocationSeries{Key: key, Values: values})
	}
	return series
}
