package domain

import "time"

// Payload is the complete result of one forecasting pass: every case record
// annotated with its location's risk tier, the outbreak ranking, the
// held-out accuracy map (empty unless measured), and national totals.
// It is written to the result cache wholesale and served read-only until
// the next refresh.
type Payload struct {
	Records      []AnnotatedRecord  `json:"records"`
	Ranked       []RankedLocation   `json:"ranked"`
	TopLocations []string           `json:"top_locations"`
	Metrics      map[string]float64 `json:"metrics"`
	TotalCases   int                `json:"total_cases"`
	TotalDeaths  int                `json:"total_deaths"`
	GeneratedAt  time.Time          `json:"generated_at"`
}

// MeanSMAPE collapses the per-location accuracy map into the single scalar
// reported to the hyperparameter tuner. Returns false when no metrics were
// measured; the caller decides what a missing run is worth.
func (p *Payload) MeanSMAPE() (float64, bool) {
	if len(p.Metrics) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range p.Metrics {
		sum += v
	}
	return sum / float64(len(p.Metrics)), true
}
