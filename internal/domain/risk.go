package domain

import (
	"math"
	"sort"
)

// MinBucket and MaxBucket bound the risk tiers.
const (
	MinBucket = 1
	MaxBucket = 6
)

// riskLabels maps each bucket to its user-facing label.
var riskLabels = map[int]string{
	1: "Low",
	2: "Low-Medium",
	3: "Medium",
	4: "Medium-High",
	5: "High",
	6: "Very High",
}

// Label returns the display label for a risk bucket. Out-of-range buckets
// fall back to the lowest tier.
func Label(bucket int) string {
	if l, ok := riskLabels[bucket]; ok {
		return l
	}
	return riskLabels[MinBucket]
}

// Bucket converts a growth ratio into a risk tier in [MinBucket, MaxBucket].
//
// The curve is deliberately non-linear: a flat trend (growth 1.0) lands in
// the bottom tier, while growth of 2.0 saturates the top tier. Locations
// with no growth ratio at all are assigned MinBucket by the caller.
func Bucket(growth float64) int {
	b := int(math.Round(growth*growth + (growth-1)*8))
	if b < MinBucket {
		return MinBucket
	}
	if b > MaxBucket {
		return MaxBucket
	}
	return b
}

// LocationGrowth pairs a location with its damped growth ratio.
type LocationGrowth struct {
	Key    string
	Growth float64
}

// RankedLocation is one entry of the final outbreak ranking.
type RankedLocation struct {
	Location    string  `json:"location"`
	GrowthRatio float64 `json:"growth_ratio"`
	Bucket      int     `json:"bucket"`
	Label       string  `json:"label"`
}

// Rank orders locations by growth ratio descending and assigns buckets.
// Input order is the tie-break: the sort is stable, so locations with equal
// growth keep their discovery order. The result is a permutation of the
// input — only locations that produced a growth ratio belong here.
func Rank(growth []LocationGrowth) []RankedLocation {
	ranked := make([]RankedLocation, len(growth))
	for i, g := range growth {
		b := Bucket(g.Growth)
		ranked[i] = RankedLocation{
			Location:    g.Key,
			GrowthRatio: g.Growth,
			Bucket:      b,
			Label:       Label(b),
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].GrowthRatio > ranked[j].GrowthRatio
	})
	return ranked
}
