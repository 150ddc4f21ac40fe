// Package arima implements ARIMA model fitting with automatic order
// selection, sized for short daily count series.
//
// Estimation is conditional least squares: Hannan-Rissanen two-stage
// regression for initial coefficients, refined by a configurable numerical
// optimizer. Order selection walks the (p,q) grid stepwise from a starting
// point, scoring each candidate with an information criterion computed on
// the conditional residuals. Differencing order is chosen up front by a
// lag-1 persistence heuristic.
package arima

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Config controls order search and parameter estimation.
type Config struct {
	StartP, MaxP int
	StartQ, MaxQ int
	MaxD         int
	MaxIter      int
	Method       string // optimizer: nm, bfgs, lbfgs, cg
	Scoring      string // objective: mse, mae
	Criterion    string // aic, aicc, bic
}

// DefaultConfig returns a small search suitable for series of a few weeks.
func DefaultConfig() Config {
	return Config{
		StartP: 2, MaxP: 6,
		StartQ: 2, MaxQ: 6,
		MaxD:      2,
		MaxIter:   50,
		Method:    "lbfgs",
		Scoring:   "mse",
		Criterion: "aic",
	}
}

// Model is a fitted ARIMA(p,d,q).
type Model struct {
	P, D, Q int
	IC      float64

	coef   params
	diffed []float64 // d-times differenced training series
	resid  []float64 // conditional residuals aligned with diffed
	lasts  []float64 // final observation at each differencing level < d
}

// ErrNoModel is returned when no candidate order can be estimated.
var ErrNoModel = errors.New("arima: no fittable model")

// Fit selects and estimates the best model for series under cfg.
func Fit(series []float64, cfg Config) (*Model, error) {
	if len(series) < 3 {
		return nil, fmt.Errorf("arima: series too short (%d observations)", len(series))
	}
	for _, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.New("arima: non-finite observation")
		}
	}

	d := chooseD(series, cfg.MaxD)
	y := series
	lasts := make([]float64, 0, d)
	for i := 0; i < d; i++ {
		lasts = append(lasts, y[len(y)-1])
		y = difference(y)
	}

	// A (near-)constant working series needs no ARMA structure: the model
	// collapses to drift, which also covers perfectly linear trends after
	// one difference.
	if stat.Variance(y, nil) < 1e-12 {
		coef := params{c: stat.Mean(y, nil)}
		m := &Model{D: d, coef: coef, diffed: y, resid: make([]float64, len(y)), lasts: lasts}
		m.IC = criterion(y, coef, cfg.Criterion)
		return m, nil
	}

	best, err := searchOrders(y, cfg)
	if err != nil {
		return nil, err
	}
	best.D = d
	best.lasts = lasts
	return best, nil
}

// Forecast returns the next steps values on the original scale. Future
// shocks are zero; in-sample residuals feed the MA terms of the first steps.
func (m *Model) Forecast(steps int) []float64 {
	yExt := append([]float64(nil), m.diffed...)
	eExt := append([]float64(nil), m.resid...)
	for s := 0; s < steps; s++ {
		v := m.coef.c
		for i, phi := range m.coef.phi {
			if idx := len(yExt) - 1 - i; idx >= 0 {
				v += phi * yExt[idx]
			}
		}
		for j, theta := range m.coef.theta {
			if idx := len(eExt) - 1 - j; idx >= 0 {
				v += theta * eExt[idx]
			}
		}
		yExt = append(yExt, v)
		eExt = append(eExt, 0)
	}
	return undifference(yExt[len(m.diffed):], m.lasts)
}

// searchOrders walks the (p,q) grid stepwise from the configured starting
// point, keeping the candidate with the lowest information criterion. The
// white-noise, pure-AR(1), and pure-MA(1) baselines are always evaluated.
func searchOrders(y []float64, cfg Config) (*Model, error) {
	type key struct{ p, q int }
	seen := make(map[key]*Model)

	feasible := func(p, q int) bool {
		if p < 0 || q < 0 || p > cfg.MaxP || q > cfg.MaxQ {
			return false
		}
		return len(y)-p >= p+q+2
	}
	evaluate := func(p, q int) *Model {
		k := key{p, q}
		if m, ok := seen[k]; ok {
			return m
		}
		var m *Model
		if feasible(p, q) {
			m = fitOrder(y, p, q, cfg)
		}
		seen[k] = m
		return m
	}
	better := func(a, b *Model) bool {
		if a == nil {
			return false
		}
		return b == nil || a.IC < b.IC
	}

	// Clamp the configured starting point down to a feasible order.
	p, q := cfg.StartP, cfg.StartQ
	for (p > 0 || q > 0) && !feasible(p, q) {
		if p >= q {
			p--
		} else {
			q--
		}
	}

	best := evaluate(p, q)
	for _, seed := range [][2]int{{0, 0}, {1, 0}, {0, 1}} {
		if m := evaluate(seed[0], seed[1]); better(m, best) {
			best = m
			p, q = seed[0], seed[1]
		}
	}

	for moves := 0; moves < 20; moves++ {
		improved := false
		for _, step := range [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {-1, -1}} {
			if m := evaluate(p+step[0], q+step[1]); better(m, best) {
				best = m
				p, q = p+step[0], q+step[1]
				improved = true
				break
			}
		}
		if !improved {
			break
		}
	}

	if best == nil {
		return nil, ErrNoModel
	}
	return best, nil
}

// fitOrder estimates a single (p,q) candidate. Returns nil when the order
// cannot be estimated on this series.
func fitOrder(y []float64, p, q int, cfg Config) *Model {
	init, err := hannanRissanen(y, p, q)
	if err != nil {
		return nil
	}
	coef := refine(y, init, cfg)
	ic := criterion(y, coef, cfg.Criterion)
	if math.IsNaN(ic) {
		return nil
	}
	return &Model{
		P:      p,
		Q:      q,
		IC:     ic,
		coef:   coef,
		diffed: y,
		resid:  residuals(y, coef),
	}
}

// criterion scores a fitted candidate. The residual sum of squares feeds a
// Gaussian log-likelihood approximation regardless of the estimation
// scoring rule, so candidates stay comparable.
func criterion(y []float64, coef params, name string) float64 {
	p := len(coef.phi)
	n := len(y) - p
	if n < 1 {
		return math.NaN()
	}
	resid := residuals(y, coef)
	var rss float64
	for _, e := range resid[p:] {
		rss += e * e
	}
	if rss < 1e-12 {
		rss = 1e-12
	}
	k := float64(len(coef.phi) + len(coef.theta) + 1)
	nf := float64(n)
	base := nf * math.Log(rss/nf)

	switch name {
	case "bic":
		return base + k*math.Log(nf)
	case "aicc":
		aic := base + 2*k
		if nf-k-1 <= 0 {
			return math.Inf(1)
		}
		return aic + 2*k*(k+1)/(nf-k-1)
	default: // aic
		return base + 2*k
	}
}
