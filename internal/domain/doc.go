// Package domain models US county-level COVID case data and outbreak risk.
//
// # Data Source
//
// Case counts come from the New York Times covid-19-data repository
// (us-counties.csv): one row per county per day with cumulative cases and
// deaths. The "fips" column is kept as a string to preserve leading zeros
// (e.g. "01001" for Autauga County, AL). Rows whose county is "Unknown" are
// state-level remainders that could not be attributed to a county; they are
// not real locations and are excluded at ingest.
//
// # Location Identity
//
// Counties are grouped by the "<county>, <state>" string rather than FIPS.
// A handful of NYT rows (e.g. "New York City") carry no FIPS code at all, so
// the name pair is the identity used for modeling and ranking; FIPS is kept
// only so the map layer can join case rows to boundary polygons.
//
// # Risk Buckets
//
// Predicted growth maps to a six-tier risk bucket through a fixed non-linear
// formula (see Bucket). The curve compresses flat trends (growth near 1.0)
// into the low tiers and amplifies strong predicted growth into the high
// tiers without needing a second pass over the full distribution.
package domain
